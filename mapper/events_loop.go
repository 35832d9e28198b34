package mapper

import (
	"time"

	"github.com/gridmetric/phasoradapter/frameparser"
	"github.com/gridmetric/phasoradapter/protocol"
)

// runEventLoop is the mapper's single consumer of the frame parser's
// event stream: a single event enum delivered through a channel,
// consumed by one main loop, linearizing updates to per-connection
// counters.
func (m *Mapper) runEventLoop(events <-chan frameparser.Event, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		}
	}
}

// handleEvent implements the parser-event response table.
func (m *Mapper) handleEvent(ev frameparser.Event) {
	switch ev.Kind {
	case frameparser.ConnectionAttempt:
		m.connMu.Lock()
		m.connectionAttempts++
		m.connMu.Unlock()
		m.metrics.ConnectionAttempt(m.name)
		m.logger.Info("connection attempt")

	case frameparser.ConnectionEstablished:
		if m.startedAt.IsZero() {
			m.startedAt = time.Now()
		}
		m.monitor.Reset()
		if m.SupportsCommands() || m.settings.AllowUseOfCachedConfiguration {
			m.monitor.Enable()
		}
		m.setState(stateConnectedNoConfig)
		m.logger.Info("connection established")

	case frameparser.ConnectionException:
		m.metrics.ConnectionException(m.name)
		m.logger.WithError(ev.Err).Warn("connection exception")
		if m.enabled.Load() {
			m.RestartConnectCycle()
		}

	case frameparser.ConnectionTerminated:
		m.logger.WithError(ev.Err).Warn("connection terminated")
		if m.enabled.Load() {
			m.setState(stateConnecting)
			m.RestartConnectCycle()
		}

	case frameparser.ReceivedConfigurationFrame:
		m.metrics.FrameReceived(m.name, "configuration")
		m.connMu.Lock()
		first := !m.receivedConfigFrame
		m.receivedConfigFrame = true
		m.connMu.Unlock()

		m.monitor.NoteConfigurationReceived()
		if first && ev.Config != nil {
			m.cache.Cache(m.name, ev.Config)
		}
		if m.State() != stateStreaming {
			m.setState(stateStreaming)
		}

	case frameparser.ReceivedDataFrame:
		m.metrics.FrameReceived(m.name, "data")
		m.extractFrameMeasurements(ev.DataFrame)

	case frameparser.ReceivedHeaderFrame:
		m.metrics.FrameReceived(m.name, "header")

	case frameparser.ReceivedFrameBufferImage:
		m.metrics.BytesReceived(m.name, ev.ByteCount)
		m.monitor.NoteBytesReceived(ev.ByteCount)

	case frameparser.ParsingException:
		m.metrics.ParsingException(m.name)
		m.logger.WithError(ev.Err).Warn("parsing exception")

	case frameparser.ExceededParsingExceptionThreshold:
		m.logger.Warn("exceeded parsing exception threshold, restarting connect cycle")
		if m.enabled.Load() {
			m.RestartConnectCycle()
		}

	case frameparser.ConfigurationChanged:
		m.metrics.ConfigurationChange(m.name)
		m.connMu.Lock()
		m.receivedConfigFrame = false
		m.configurationChanges++
		m.connMu.Unlock()

		m.setState(stateConnectedNoConfig)
		m.monitor.Disable()
		m.monitor.Enable()

		// In-flight data frames continue to be processed against the old
		// device table/catalog snapshot until loadTopology below completes
		// and swaps the pointers. Deliberately not synchronous: blocking
		// the event loop on a full topology reload would stall live data
		// processing. TODO assert the race window explicitly once a
		// deterministic repro is available.
		go func() {
			if err := m.loadTopology(); err != nil {
				m.logger.WithError(err).Warn("failed to reload topology after configurationChanged")
			}
		}()

		if err := m.SendCommand(DeviceCommand(protocol.CmdCfg2)); err != nil {
			m.logger.WithError(err).Warn("failed to request refreshed configuration frame")
		}
	}
}
