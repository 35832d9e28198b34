package configsource

import "strings"

// MemorySource is an in-memory Source fake, substituted for SQLiteSource
// in tests so they don't need a real database.
type MemorySource struct {
	Adapters     []AdapterRow
	Devices      []DeviceRow
	Measurements []MeasurementRow
}

// ResolveAdapterByName implements Source.
func (m *MemorySource) ResolveAdapterByName(name string) (AdapterRow, bool, error) {
	for _, a := range m.Adapters {
		if strings.EqualFold(a.AdapterName, name) {
			return a, true, nil
		}
	}
	return AdapterRow{}, false, nil
}

// DevicesByParent implements Source.
func (m *MemorySource) DevicesByParent(parentID int64) ([]DeviceRow, error) {
	var out []DeviceRow
	for _, d := range m.Devices {
		if d.ParentID == parentID {
			out = append(out, d)
		}
	}
	return out, nil
}

// DeviceByAccessID implements Source.
func (m *MemorySource) DeviceByAccessID(accessID uint16) (DeviceRow, bool, error) {
	for _, d := range m.Devices {
		if d.AccessID == accessID {
			return d, true, nil
		}
	}
	return DeviceRow{}, false, nil
}

// MeasurementsByDevice implements Source.
func (m *MemorySource) MeasurementsByDevice(deviceID int64) ([]MeasurementRow, error) {
	var out []MeasurementRow
	for _, mm := range m.Measurements {
		if mm.DeviceID == deviceID {
			out = append(out, mm)
		}
	}
	return out, nil
}
