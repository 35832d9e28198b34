// Package catalog maps signal-reference strings to measurement metadata,
// loaded once from an external configuration source.
package catalog

import "github.com/google/uuid"

// Descriptor is immutable measurement metadata keyed by SignalReference.
type Descriptor struct {
	SignalID        uuid.UUID
	Key             string
	SignalReference string
	Adder           float64
	Multiplier      float64
}

// Catalog is a read-only, swap-on-reconfiguration map from signal
// reference to Descriptor.
type Catalog struct {
	byRef map[string]*Descriptor
}

// New builds a catalog from a flat list of descriptors.
func New(descriptors []*Descriptor) *Catalog {
	c := &Catalog{byRef: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		c.byRef[d.SignalReference] = d
	}
	return c
}

// Get returns the descriptor for signalReference, or nil if no mapping
// exists — callers silently drop the parsed value in that case.
func (c *Catalog) Get(signalReference string) *Descriptor {
	if c == nil {
		return nil
	}
	return c.byRef[signalReference]
}

// Len reports how many descriptors are loaded, for status reporting.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byRef)
}
