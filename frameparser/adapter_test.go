package frameparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridmetric/phasoradapter/protocol"
)

func newFixturePMU(t *testing.T) *protocol.PMU {
	t.Helper()

	pmu := protocol.NewPMU()
	st := protocol.NewPMUStation("TESTSTN", 7, true, true, true, false)
	st.AddPhasor("VA", 1, protocol.PhunitVoltage)
	pmu.Config2.AddPMUStation(st)
	pmu.Config1.ConfigFrame = *pmu.Config2
	pmu.Config2.DataRate = 30

	require.NoError(t, pmu.Start("127.0.0.1:0"))
	t.Cleanup(pmu.Stop)
	return pmu
}

func drainUntil(t *testing.T, events <-chan Event, kind Kind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", kind)
		}
	}
}

func TestAdapterConnectsAndReceivesConfiguration(t *testing.T) {
	pmu := newFixturePMU(t)

	a := New(pmu.Addr().String(), 7, nil)
	require.NoError(t, a.Start())
	defer a.Stop()

	drainUntil(t, a.Events(), ConnectionEstablished, time.Second)

	require.NoError(t, a.SendCommand(protocol.CmdCfg2))
	ev := drainUntil(t, a.Events(), ReceivedConfigurationFrame, 2*time.Second)
	require.NotNil(t, ev.Config)
	require.Equal(t, uint16(7), ev.Config.IDCode)
}

func TestAdapterStreamsDataFramesAfterStart(t *testing.T) {
	pmu := newFixturePMU(t)

	a := New(pmu.Addr().String(), 7, nil)
	require.NoError(t, a.Start())
	defer a.Stop()

	drainUntil(t, a.Events(), ConnectionEstablished, time.Second)
	require.NoError(t, a.SendCommand(protocol.CmdCfg2))
	drainUntil(t, a.Events(), ReceivedConfigurationFrame, 2*time.Second)

	require.NoError(t, a.SendCommand(protocol.CmdStart))
	ev := drainUntil(t, a.Events(), ReceivedDataFrame, 2*time.Second)
	require.NotNil(t, ev.DataFrame)
	require.Equal(t, uint16(7), ev.DataFrame.IDCode)
}

func TestAdapterEmitsConnectionExceptionOnUnreachableAddress(t *testing.T) {
	a := New("127.0.0.1:1", 7, nil)
	err := a.Start()
	require.Error(t, err)

	ev := drainUntil(t, a.Events(), ConnectionException, time.Second)
	require.Error(t, ev.Err)
}

func TestAdapterStopClosesConnection(t *testing.T) {
	pmu := newFixturePMU(t)

	a := New(pmu.Addr().String(), 7, nil)
	require.NoError(t, a.Start())
	drainUntil(t, a.Events(), ConnectionEstablished, time.Second)

	a.Stop()
}
