package devicetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSimpleNoCollision(t *testing.T) {
	table, rejected := Load([]*Record{
		{IDCode: 7, Label: "D7", StationName: "Station Seven"},
	})

	require.Empty(t, rejected)

	r, ok := table.Resolve("Station Seven", 7)
	require.True(t, ok)
	assert.Equal(t, "D7", r.Label)
}

func TestLoadIDCollisionDemotesToLabelTable(t *testing.T) {
	table, rejected := Load([]*Record{
		{IDCode: 1, Label: "A", StationName: "A"},
		{IDCode: 1, Label: "B", StationName: "B"},
	})
	require.Empty(t, rejected)

	a, ok := table.Resolve("A", 1)
	require.True(t, ok)
	assert.Equal(t, "A", a.Label)

	b, ok := table.Resolve("B", 1)
	require.True(t, ok)
	assert.Equal(t, "B", b.Label)

	// Primary idCode table no longer resolves either; the label table
	// takes precedence and is the only way to disambiguate.
	_, ok = table.ByIDCode(1)
	assert.False(t, ok)
}

func TestLoadRejectsDoubleCollision(t *testing.T) {
	_, rejected := Load([]*Record{
		{IDCode: 1, Label: "A", StationName: "A"},
		{IDCode: 1, Label: "B", StationName: "B"},
		{IDCode: 1, Label: "A", StationName: "A-dup"}, // idCode taken, label taken
	})

	require.Len(t, rejected, 1)
	assert.Equal(t, "A", rejected[0].Label)
}

func TestResolveUnknownRecordsUndefined(t *testing.T) {
	table := New()

	n, first := table.RecordUndefined("GHOST")
	assert.Equal(t, uint64(1), n)
	assert.True(t, first)

	n, first = table.RecordUndefined("GHOST")
	assert.Equal(t, uint64(2), n)
	assert.False(t, first)

	assert.Equal(t, map[string]uint64{"GHOST": 2}, table.UndefinedCounts())
}

func TestLabelLookupIsCaseInsensitive(t *testing.T) {
	table, _ := Load([]*Record{
		{IDCode: 1, Label: "Alpha", StationName: "Alpha"},
		{IDCode: 1, Label: "Beta", StationName: "Beta"},
	})

	r, ok := table.Resolve("ALPHA", 1)
	require.True(t, ok)
	assert.Equal(t, "Alpha", r.Label)
}
