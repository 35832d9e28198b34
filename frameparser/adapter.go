package frameparser

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gridmetric/phasoradapter/protocol"
)

// Adapter wraps protocol.PDC's synchronous request/response API into an
// event stream. It owns exactly one TCP connection at a time;
// reconnection policy belongs to the caller (the mapper's state
// machine), which calls Start again after a ConnectionException or
// ConnectionTerminated event.
type Adapter struct {
	address string
	idCode  uint16
	logger  *log.Logger

	// ParsingExceptionThreshold/Window bound how many parsing errors in
	// a sliding window trigger ExceededParsingExceptionThreshold.
	ParsingExceptionThreshold int
	ParsingExceptionWindow    time.Duration

	mu           sync.Mutex
	pdc          *protocol.PDC
	activeConfig *protocol.ConfigFrame
	conn         net.Conn
	events       chan Event
	stop         chan struct{}
	exceptionLog []time.Time
	stopOnce     sync.Once
}

// New creates an Adapter for a single device/connection identified by
// idCode, dialing address when Start is called.
func New(address string, idCode uint16, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New()
	}
	return &Adapter{
		address:                   address,
		idCode:                    idCode,
		logger:                    logger,
		ParsingExceptionThreshold: 5,
		ParsingExceptionWindow:    10 * time.Second,
		events:                    make(chan Event, 256),
	}
}

// Events returns the adapter's event channel. Always drain it; a full
// channel stalls the read loop.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// SupportsCommands reports whether this connection can receive
// SendCommand calls (true for a live TCP connection).
func (a *Adapter) SupportsCommands() bool {
	return true
}

func (a *Adapter) emit(e Event) {
	select {
	case a.events <- e:
	default:
		a.logger.Warn("frameparser event channel full, dropping event")
	}
}

// Start dials address and begins the read loop in a background goroutine.
// It blocks only for the dial itself; emits ConnectionAttempt before
// dialing and either ConnectionEstablished or ConnectionException after.
func (a *Adapter) Start() error {
	a.emit(Event{Kind: ConnectionAttempt})

	pdc := protocol.NewPDC(a.idCode)
	if err := pdc.Connect(a.address); err != nil {
		a.emit(Event{Kind: ConnectionException, Err: fmt.Errorf("connect to %s: %w", a.address, err)})
		return err
	}

	a.mu.Lock()
	a.pdc = pdc
	a.conn = pdc.Socket
	a.stop = make(chan struct{})
	a.stopOnce = sync.Once{}
	a.mu.Unlock()

	a.emit(Event{Kind: ConnectionEstablished})

	go a.readLoop()
	return nil
}

// Stop closes the connection; in-flight frame processing is allowed to
// complete — there is no hard cancel.
func (a *Adapter) Stop() {
	a.mu.Lock()
	stopCh := a.stop
	pdc := a.pdc
	a.mu.Unlock()

	if stopCh != nil {
		a.stopOnce.Do(func() { close(stopCh) })
	}
	if pdc != nil {
		pdc.Disconnect()
	}
}

// SendCommand forwards cmd to the device.
func (a *Adapter) SendCommand(cmd uint16) error {
	a.mu.Lock()
	pdc := a.pdc
	a.mu.Unlock()

	if pdc == nil {
		return fmt.Errorf("frameparser: no active connection")
	}
	return pdc.SendCommand(cmd)
}

// InjectConfigurationFrame feeds a configuration frame into the adapter
// bypassing the wire, used for the cached-configuration fallback path and
// for loading a configuration from a local file. It updates the active
// config used to unpack subsequent data frames and emits a
// ReceivedConfigurationFrame event exactly as a wire-received frame would.
func (a *Adapter) InjectConfigurationFrame(frame *protocol.ConfigFrame) {
	a.mu.Lock()
	a.activeConfig = frame
	if a.pdc != nil {
		a.pdc.PMUConfig2 = frame
	}
	a.mu.Unlock()

	a.emit(Event{Kind: ReceivedConfigurationFrame, Config: frame})
}

func (a *Adapter) readLoop() {
	a.mu.Lock()
	pdc := a.pdc
	stopCh := a.stop
	a.mu.Unlock()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		frame, n, err := a.readFrameCounted(pdc)
		if n > 0 {
			a.emit(Event{Kind: ReceivedFrameBufferImage, ByteCount: n})
		}
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
			}
			a.emit(Event{Kind: ConnectionTerminated, Err: err})
			return
		}

		a.dispatch(frame)
	}
}

// readFrameCounted mirrors protocol.PDC.ReadFrame but reports the number
// of bytes actually read off the wire for this frame, which
// PDC.ReadFrame does not expose.
func (a *Adapter) readFrameCounted(pdc *protocol.PDC) (interface{}, int, error) {
	buf := pdc.Buffer
	totalRead := 0
	for totalRead < 4 {
		n, err := pdc.Socket.Read(buf[totalRead:])
		if err != nil {
			return nil, totalRead, err
		}
		totalRead += n
	}

	frameSize := int(binary.BigEndian.Uint16(buf[2:4]))
	for totalRead < frameSize {
		n, err := pdc.Socket.Read(buf[totalRead:])
		if err != nil {
			return nil, totalRead, err
		}
		totalRead += n
	}

	a.mu.Lock()
	cfg := a.activeConfig
	a.mu.Unlock()

	frame, err := protocol.UnpackFrame(buf[:frameSize], cfg)
	if err != nil {
		return nil, totalRead, nil //nolint:nilerr // parsing errors are reported via dispatch, not connection teardown
	}
	return frame, totalRead, nil
}

func (a *Adapter) dispatch(frame interface{}) {
	switch f := frame.(type) {
	case nil:
		a.recordParsingException(fmt.Errorf("unrecognized or undecodable frame"))

	case *protocol.HeaderFrame:
		a.emit(Event{Kind: ReceivedHeaderFrame, Header: f})

	case *protocol.Config1Frame:
		a.acceptConfigFrame(&f.ConfigFrame)

	case *protocol.ConfigFrame:
		a.acceptConfigFrame(f)

	case *protocol.DataFrame:
		a.emit(Event{Kind: ReceivedDataFrame, DataFrame: f})

	case *protocol.CommandFrame:
		// Echoed commands are not meaningful to a PDC-role adapter.

	default:
		a.recordParsingException(fmt.Errorf("unexpected frame type %T", f))
	}
}

func (a *Adapter) acceptConfigFrame(cfg *protocol.ConfigFrame) {
	a.mu.Lock()
	previous := a.activeConfig
	a.activeConfig = cfg
	if a.pdc != nil {
		a.pdc.PMUConfig2 = cfg
	}
	a.mu.Unlock()

	if previous != nil && configurationShapeChanged(previous, cfg) {
		a.emit(Event{Kind: ConfigurationChanged, Config: cfg})
	}
	a.emit(Event{Kind: ReceivedConfigurationFrame, Config: cfg})
}

// configurationShapeChanged reports whether the channel layout (phasor,
// analog, digital counts per station, or station count) differs between
// two configuration frames — the only externally observable signal this
// adapter has for "the device's configuration changed mid-stream", absent
// a dedicated wire notification.
func configurationShapeChanged(a, b *protocol.ConfigFrame) bool {
	if len(a.PMUStationList) != len(b.PMUStationList) {
		return true
	}
	for i := range a.PMUStationList {
		sa, sb := a.PMUStationList[i], b.PMUStationList[i]
		if sa.Phnmr != sb.Phnmr || sa.Annmr != sb.Annmr || sa.Dgnmr != sb.Dgnmr {
			return true
		}
	}
	return false
}

func (a *Adapter) recordParsingException(err error) {
	now := time.Now()

	a.mu.Lock()
	a.exceptionLog = append(a.exceptionLog, now)
	cutoff := now.Add(-a.ParsingExceptionWindow)
	kept := a.exceptionLog[:0]
	for _, t := range a.exceptionLog {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.exceptionLog = kept
	exceeded := len(a.exceptionLog) >= a.ParsingExceptionThreshold
	a.mu.Unlock()

	a.emit(Event{Kind: ParsingException, Err: err})
	if exceeded {
		a.emit(Event{Kind: ExceededParsingExceptionThreshold})
	}
}
