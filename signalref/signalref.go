// Package signalref generates and caches platform-wide signal-reference
// strings for phasor measurements, keeping string formatting off the
// per-measurement hot path.
package signalref

import (
	"fmt"
	"sync"
)

// Kind identifies the semantic role of a sample within a data frame.
type Kind int

const (
	Status Kind = iota
	Angle
	Magnitude
	Frequency
	DfDt
	Analog
	Digital
	Quality
	Calculation
	Statistic
)

// code is the one-or-two-letter tag embedded in a SignalReference for each
// Kind, matching the GridProtectionAlliance signal-reference convention
// (e.g. "IS-PA1" for the first phasor angle).
func (k Kind) code() string {
	switch k {
	case Status:
		return "SF"
	case Angle:
		return "PA"
	case Magnitude:
		return "PM"
	case Frequency:
		return "FQ"
	case DfDt:
		return "DF"
	case Analog:
		return "AV"
	case Digital:
		return "DV"
	case Quality:
		return "QF"
	case Calculation:
		return "CV"
	case Statistic:
		return "ST"
	default:
		return "UN"
	}
}

// indexed reports whether Kind is a positional array (Analog/Digital) as
// opposed to a scalar-per-device signal. Angle and Magnitude are not
// indexed kinds here, yet the mapper reads them through Indexed() by
// phasor position, as it does Analog and Digital.
func (k Kind) indexed() bool {
	return k == Analog || k == Digital
}

// Encode synthesizes a scalar signal reference for adapterName/kind.
func Encode(adapterName string, kind Kind) string {
	return fmt.Sprintf("%s!IS-%s", adapterName, kind.code())
}

// EncodeIndexed synthesizes an indexed signal reference. ordinal is
// 1-based.
func EncodeIndexed(adapterName string, kind Kind, ordinal int) string {
	return fmt.Sprintf("%s!IS-%s%d", adapterName, kind.code(), ordinal)
}

// slot holds the cached string(s) for one Kind. Either scalar is set (for
// non-indexed kinds) or indexed is set (sized to the last-seen count); the
// two are never both populated for the same Kind, matching the tagged
// variant suggested for this cache (scalar xor indexed array).
type slot struct {
	scalar  *string
	indexed []*string
}

// Cache memoizes signal-reference strings per (kind, index, count), and
// invalidates an indexed slot whenever the device's channel count changes.
type Cache struct {
	mu          sync.Mutex
	adapterName string
	slots       map[Kind]*slot
}

// New creates a cache that synthesizes references under adapterName.
func New(adapterName string) *Cache {
	return &Cache{
		adapterName: adapterName,
		slots:       make(map[Kind]*slot),
	}
}

// Scalar returns the cached signal reference for a scalar Kind, synthesizing
// and storing it on first call.
func (c *Cache) Scalar(kind Kind) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[kind]
	if !ok || s.scalar == nil {
		ref := Encode(c.adapterName, kind)
		s = &slot{scalar: &ref}
		c.slots[kind] = s
	}
	return *s.scalar
}

// Indexed returns the cached signal reference for index (0-based) among
// count total channels of kind. If a cached array exists for kind with a
// different length, it is discarded and replaced wholesale; only the
// requested slot is synthesized eagerly, the rest of the new array
// lazily on their own first access.
func (c *Cache) Indexed(kind Kind, index, count int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[kind]
	if !ok || len(s.indexed) != count {
		s = &slot{indexed: make([]*string, count)}
		c.slots[kind] = s
	}

	if s.indexed[index] == nil {
		ref := EncodeIndexed(c.adapterName, kind, index+1)
		s.indexed[index] = &ref
	}
	return *s.indexed[index]
}
