// Package configsource implements read-only access to the topology
// tables (InputAdapters, InputStreamDevices, ActiveMeasurements) that
// define device and measurement mappings. A SQLite-backed implementation
// and an in-memory fake for tests both satisfy Source.
package configsource

import "github.com/google/uuid"

// AdapterRow is a row of InputAdapters, used to resolve a sharedMapping
// acronym to the adapter ID whose devices/measurements should be used.
type AdapterRow struct {
	ID          int64
	AdapterName string
}

// DeviceRow is a row of InputStreamDevices.
type DeviceRow struct {
	ID          int64
	ParentID    int64
	AccessID    uint16
	Acronym     string
	Name        string
	ExternalTag uint32
}

// MeasurementRow is a row of ActiveMeasurements.
type MeasurementRow struct {
	DeviceID        int64
	SignalReference string
	SignalID        uuid.UUID
	Key             string
	Adder           float64
	Multiplier      float64
}

// Source is the read-only contract the mapper depends on. Implementations
// never mutate the underlying store.
type Source interface {
	// ResolveAdapterByName finds an adapter's ID by its AdapterName
	// (case-insensitive), for sharedMapping resolution.
	ResolveAdapterByName(name string) (AdapterRow, bool, error)

	// DevicesByParent returns InputStreamDevices rows filtered by
	// ParentID (concentrator topology load).
	DevicesByParent(parentID int64) ([]DeviceRow, error)

	// DeviceByAccessID returns the single InputStreamDevices row for a
	// non-concentrator adapter (filtered by its own accessID as ID).
	DeviceByAccessID(accessID uint16) (DeviceRow, bool, error)

	// MeasurementsByDevice returns ActiveMeasurements rows filtered by
	// DeviceID = the adapter's effective query ID.
	MeasurementsByDevice(deviceID int64) ([]MeasurementRow, error)
}
