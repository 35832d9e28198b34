package configcache

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmetric/phasoradapter/protocol"
)

func sampleFrame() *protocol.ConfigFrame {
	cfg := protocol.NewConfigFrame()
	cfg.IDCode = 7
	cfg.TimeBase = 1_000_000
	cfg.DataRate = 30

	st := protocol.NewPMUStation("STATION7", 7, true, true, true, false)
	st.AddPhasor("VA", 1, protocol.PhunitVoltage)
	st.AddAnalog("PWR", 1, protocol.AnunitPow)
	cfg.AddPMUStation(st)
	return cfg
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	store.Cache("Adapter1", sampleFrame())

	require.Eventually(t, func() bool {
		f, err := store.Load("Adapter1")
		return err == nil && f != nil
	}, time.Second, 5*time.Millisecond)

	frame, err := store.Load("Adapter1")
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, uint16(7), frame.IDCode)
	require.Len(t, frame.PMUStationList, 1)
	assert.Equal(t, "STATION7", frame.PMUStationList[0].STN)
	assert.Equal(t, uint16(1), frame.PMUStationList[0].Phnmr)
}

func TestLoadMissingFileReturnsNilNoError(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	frame, err := store.Load("NoSuchAdapter")
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestLoadCorruptFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, os.WriteFile(dir+"/Broken.configuration.xml", []byte("not xml{"), 0o644))

	frame, err := store.Load("Broken")
	assert.Error(t, err)
	assert.Nil(t, frame)
}
