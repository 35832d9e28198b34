// Package configcache implements the last-known-good configuration
// cache: a per-adapter file, written atomically off the event thread and
// read back across process restarts.
//
// The on-disk format is XML (the cache file is named
// "<adapterName>.configuration.xml"); no third-party XML or structured
// file-format library fits this need, so this is one of the few places
// the adapter falls back to the standard library's encoding/xml, which
// is sufficient for a small, self-contained document.
package configcache

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gridmetric/phasoradapter/protocol"
)

// Document is the serializable snapshot of a configuration frame. It
// captures only the fields needed to rebuild a protocol.ConfigFrame,
// deliberately not the full wire structure (the cache format is opaque to
// the rest of the adapter).
type Document struct {
	XMLName  xml.Name     `xml:"configurationCache"`
	IDCode   uint16       `xml:"idCode"`
	TimeBase uint32       `xml:"timeBase"`
	DataRate int16        `xml:"dataRate"`
	Stations []StationDoc `xml:"station"`
}

// StationDoc is one PMU station within a Document.
type StationDoc struct {
	Name    string   `xml:"name"`
	IDCode  uint16   `xml:"idCode"`
	Format  uint16   `xml:"format"`
	Phasors []string `xml:"phasor"`
	Analogs []string `xml:"analog"`
	Digital []string `xml:"digital"`
	Phunit  []uint32 `xml:"phunit"`
	Anunit  []uint32 `xml:"anunit"`
	Dgunit  []uint32 `xml:"dgunit"`
	Fnom    uint16   `xml:"fnom"`
	CfgCnt  uint16   `xml:"cfgCnt"`
}

// ToDocument converts a live configuration frame into its cache snapshot.
func ToDocument(frame *protocol.ConfigFrame) *Document {
	doc := &Document{
		IDCode:   frame.IDCode,
		TimeBase: frame.TimeBase,
		DataRate: frame.DataRate,
	}
	for _, st := range frame.PMUStationList {
		doc.Stations = append(doc.Stations, StationDoc{
			Name:    st.STN,
			IDCode:  st.IDCode,
			Format:  st.Format,
			Phasors: st.CHNAMPhasor,
			Analogs: st.CHNAMAnalog,
			Digital: st.CHNAMDigital,
			Phunit:  st.Phunit,
			Anunit:  st.Anunit,
			Dgunit:  st.Dgunit,
			Fnom:    st.Fnom,
			CfgCnt:  st.CfgCnt,
		})
	}
	return doc
}

// ToConfigFrame rebuilds a usable configuration frame from a cached
// snapshot, suitable for feeding into the mapper bypassing the wire.
func (d *Document) ToConfigFrame() *protocol.ConfigFrame {
	cfg := protocol.NewConfigFrame()
	cfg.IDCode = d.IDCode
	cfg.TimeBase = d.TimeBase
	cfg.DataRate = d.DataRate

	for _, sd := range d.Stations {
		st := &protocol.PMUStation{
			STN:          sd.Name,
			Format:       sd.Format,
			CHNAMPhasor:  sd.Phasors,
			CHNAMAnalog:  sd.Analogs,
			CHNAMDigital: sd.Digital,
			Phunit:       sd.Phunit,
			Anunit:       sd.Anunit,
			Dgunit:       sd.Dgunit,
			Fnom:         sd.Fnom,
			CfgCnt:       sd.CfgCnt,
			Phnmr:        uint16(len(sd.Phasors)),
			Annmr:        uint16(len(sd.Analogs)),
			Dgnmr:        uint16(len(sd.Dgunit)),
		}
		st.IDCode = sd.IDCode
		st.PhasorValues = make([]complex128, st.Phnmr)
		st.AnalogValues = make([]float32, st.Annmr)
		st.DigitalValues = make([][]bool, st.Dgnmr)
		for i := range st.DigitalValues {
			st.DigitalValues[i] = make([]bool, 16)
		}
		cfg.AddPMUStation(st)
	}
	return cfg
}

type writeRequest struct {
	name string
	doc  *Document
}

// Store writes/reads last-known-good configuration snapshots to a
// directory, one file per adapter name. Writes are dispatched to a
// bounded background queue so the parser event thread never blocks on
// disk.
type Store struct {
	dir    string
	logger *log.Logger

	queue chan writeRequest
	done  chan struct{}
	once  sync.Once
}

// New creates a Store rooted at dir (created if necessary) with a bounded
// write queue. Call Close to drain and stop the background worker.
func New(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create configuration cache directory: %w", err)
	}
	if logger == nil {
		logger = log.New()
	}

	s := &Store{
		dir:    dir,
		logger: logger,
		queue:  make(chan writeRequest, 32),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".configuration.xml")
}

// Cache asynchronously persists frame as the last-known-good
// configuration for name. I/O failures are logged but never propagated —
// they must not abort the mapper.
func (s *Store) Cache(name string, frame *protocol.ConfigFrame) {
	select {
	case s.queue <- writeRequest{name: name, doc: ToDocument(frame)}:
	default:
		s.logger.WithField("adapter", name).Warn("configuration cache write queue full, dropping write")
	}
}

func (s *Store) worker() {
	for {
		select {
		case req := <-s.queue:
			if err := s.writeNow(req.name, req.doc); err != nil {
				s.logger.WithError(err).WithField("adapter", req.name).Error("failed to write configuration cache")
			}
		case <-s.done:
			return
		}
	}
}

func (s *Store) writeNow(name string, doc *Document) error {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal configuration cache for %s: %w", name, err)
	}

	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp configuration cache for %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("rename configuration cache for %s: %w", name, err)
	}
	return nil
}

// Load reads the cached configuration for name. A missing file returns
// (nil, nil) — not an error. A corrupt file returns (nil, err).
func (s *Store) Load(name string) (*protocol.ConfigFrame, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read configuration cache for %s: %w", name, err)
	}
	return decode(data)
}

// LoadFile reads a configuration frame from an arbitrary path in the
// same document format as Store's own files, used for the
// configurationFile settings key.
func LoadFile(path string) (*protocol.ConfigFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file %s: %w", path, err)
	}
	return decode(data)
}

func decode(data []byte) (*protocol.ConfigFrame, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse configuration document: %w", err)
	}
	return doc.ToConfigFrame(), nil
}

// Close stops the background worker. Pending writes already pulled off
// the queue are allowed to finish; queued-but-unstarted writes are
// dropped.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}
