// Package devicetable implements the dual-keyed device registry with
// per-device counters and an append-only registry of devices observed
// on the wire but absent from configuration.
package devicetable

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridmetric/phasoradapter/signalref"
)

// Record is the configured expectation for one device. Counters are
// mutated only by the parser event pipeline; a status renderer may read
// them concurrently and observe torn values, which is an accepted
// tradeoff, not a bug.
type Record struct {
	IDCode       uint16
	Label        string
	StationName  string
	ExternalTag  uint32
	TotalFrames  uint64
	DataQuality  uint64
	TimeQuality  uint64
	DeviceErrors uint64
	OutOfOrder   uint64
	LastReport   time.Time

	// SignalRef caches this device's synthesized signal-reference
	// strings. One cache per device, since the reference string is
	// scoped to the device label, not the adapter as a whole.
	SignalRef *signalref.Cache
}

// ResetStatistics zeroes this device's counters.
func (r *Record) ResetStatistics() {
	r.TotalFrames = 0
	r.DataQuality = 0
	r.TimeQuality = 0
	r.DeviceErrors = 0
	r.OutOfOrder = 0
}

// snapshot is the immutable published state of the table: two maps that
// never share a device, swapped atomically on reconfiguration.
type snapshot struct {
	byID    map[uint16]*Record
	byLabel map[string]*Record // keys are lower-cased labels
}

// Table is the dual-keyed device registry. It is written only during Load (initialize or a configurationChanged
// reload) and read-only while streaming; reads during a reload see either
// the old or the new snapshot, never a partial one.
type Table struct {
	cur atomic.Pointer[snapshot]

	undefinedMu sync.Mutex
	undefined   map[string]uint64
}

// New creates an empty table.
func New() *Table {
	t := &Table{undefined: make(map[string]uint64)}
	t.cur.Store(&snapshot{byID: map[uint16]*Record{}, byLabel: map[string]*Record{}})
	return t
}

// RejectedDevice describes a device dropped at load time because it
// collided with both the primary and secondary tables.
type RejectedDevice struct {
	IDCode uint16
	Label  string
	Reason string
}

// Load replaces the table's contents from a flat list of records,
// applying the collision rule: if two distinct records
// share an idCode, a secondary (label, case-insensitive) map is created
// and all subsequent colliding entries go there; a device already
// resolvable by both idCode and label is rejected.
func Load(records []*Record) (*Table, []RejectedDevice) {
	byID := make(map[uint16]*Record)
	byLabel := make(map[string]*Record)
	collided := make(map[uint16]bool)
	var rejected []RejectedDevice

	for _, r := range records {
		if r.SignalRef == nil {
			r.SignalRef = signalref.New(r.Label)
		}
		labelKey := strings.ToLower(r.Label)

		_, idTaken := byID[r.IDCode]
		idTaken = idTaken || collided[r.IDCode]
		_, labelTaken := byLabel[labelKey]

		switch {
		case idTaken && labelTaken:
			rejected = append(rejected, RejectedDevice{
				IDCode: r.IDCode, Label: r.Label,
				Reason: "idCode already in use and label present in secondary table",
			})
		case idTaken:
			// First collision on this idCode: demote both the existing
			// occupant and the new record into the secondary table. Later
			// records with the same idCode go straight to the secondary table.
			if existing, ok := byID[r.IDCode]; ok {
				delete(byID, r.IDCode)
				byLabel[strings.ToLower(existing.Label)] = existing
			}
			collided[r.IDCode] = true
			byLabel[labelKey] = r
		default:
			byID[r.IDCode] = r
		}
	}

	t := &Table{undefined: make(map[string]uint64)}
	t.cur.Store(&snapshot{byID: byID, byLabel: byLabel})
	return t, rejected
}

// Swap atomically replaces the table's snapshot (used when
// configurationChanged triggers a reload). Undefined-device counters are
// not reset, since they track wire-observed stations across reloads.
func (t *Table) Swap(fresh *Table) {
	t.cur.Store(fresh.cur.Load())
}

// Resolve looks up the device for a parsed station name and idCode,
// checking the label table first (if it exists), then the primary
// idCode table.
func (t *Table) Resolve(stationName string, idCode uint16) (*Record, bool) {
	s := t.cur.Load()

	if len(s.byLabel) > 0 {
		if r, ok := s.byLabel[strings.ToLower(strings.TrimSpace(stationName))]; ok {
			return r, true
		}
	}
	if r, ok := s.byID[idCode]; ok {
		return r, true
	}
	return nil, false
}

// All returns every configured device record, for status reporting and
// resetStatistics().
func (t *Table) All() []*Record {
	s := t.cur.Load()
	out := make([]*Record, 0, len(s.byID)+len(s.byLabel))
	for _, r := range s.byID {
		out = append(out, r)
	}
	for _, r := range s.byLabel {
		out = append(out, r)
	}
	return out
}

// ByIDCode returns the device configured under idCode via the primary
// table only (used by resetDeviceStatistics, which addresses devices by
// idCode).
func (t *Table) ByIDCode(idCode uint16) (*Record, bool) {
	s := t.cur.Load()
	r, ok := s.byID[idCode]
	return r, ok
}

// RecordUndefined increments the frame count observed for a station name
// with no DeviceTable entry, returning true the first time this station is
// seen (the mapper logs a warning only on that first sighting).
func (t *Table) RecordUndefined(stationName string) (count uint64, firstSighting bool) {
	t.undefinedMu.Lock()
	defer t.undefinedMu.Unlock()

	n, seen := t.undefined[stationName]
	n++
	t.undefined[stationName] = n
	return n, !seen
}

// UndefinedCounts returns a snapshot copy of the undefined-device counter.
func (t *Table) UndefinedCounts() map[string]uint64 {
	t.undefinedMu.Lock()
	defer t.undefinedMu.Unlock()

	out := make(map[string]uint64, len(t.undefined))
	for k, v := range t.undefined {
		out[k] = v
	}
	return out
}
