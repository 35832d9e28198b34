package configsource

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySourceResolvesCaseInsensitive(t *testing.T) {
	src := &MemorySource{Adapters: []AdapterRow{{ID: 5, AdapterName: "PDC1"}}}

	row, ok, err := src.ResolveAdapterByName("pdc1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), row.ID)
}

func TestMemorySourceFiltersByParentAndDevice(t *testing.T) {
	sigID := uuid.New()
	src := &MemorySource{
		Devices: []DeviceRow{
			{ID: 1, ParentID: 9, AccessID: 1, Acronym: "A"},
			{ID: 2, ParentID: 9, AccessID: 1, Acronym: "B"},
			{ID: 3, ParentID: 0, AccessID: 1, Acronym: "C"},
		},
		Measurements: []MeasurementRow{
			{DeviceID: 1, SignalReference: "A!IS-FQ", SignalID: sigID},
		},
	}

	devices, err := src.DevicesByParent(9)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	measurements, err := src.MeasurementsByDevice(1)
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	assert.Equal(t, sigID, measurements[0].SignalID)
}
