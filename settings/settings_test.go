package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	s, err := Parse("")
	require.NoError(t, err)

	assert.False(t, s.IsConcentrator)
	assert.Equal(t, uint16(1), s.AccessID)
	assert.Equal(t, time.UTC, s.TimeZone)
	assert.Equal(t, 5*time.Second, s.DataLossInterval)
	assert.True(t, s.AllowUseOfCachedConfiguration)
}

func TestParseIsCaseInsensitiveOnKeys(t *testing.T) {
	s, err := Parse("AccessID=42;IsConcentrator=TRUE")
	require.NoError(t, err)

	assert.Equal(t, uint16(42), s.AccessID)
	assert.True(t, s.IsConcentrator)
}

func TestParseTimeZoneAndAdjustment(t *testing.T) {
	s, err := Parse("timeZone=America/New_York;timeAdjustmentTicks=10000000")
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", s.TimeZone.String())
	assert.Equal(t, int64(10_000_000), s.TimeAdjustmentTicks)
}

func TestParseSimulateTimestampDefaultsOnConfigurationFile(t *testing.T) {
	s, err := Parse("configurationFile=/tmp/cfg.xml")
	require.NoError(t, err)
	assert.True(t, s.SimulateTimestamp)

	s2, err := Parse("")
	require.NoError(t, err)
	assert.False(t, s2.SimulateTimestamp)
}

func TestParseRejectsMalformedEntry(t *testing.T) {
	_, err := Parse("accessID")
	assert.Error(t, err)
}

func TestParseRejectsInvalidValue(t *testing.T) {
	_, err := Parse("accessID=notanumber")
	assert.Error(t, err)
}
