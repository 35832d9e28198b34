package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// PMU is a minimal IEEE C37.118 server used to drive integration tests for
// the frameparser and mapper packages against a real TCP byte stream,
// instead of a live device. It answers the same command set the original
// simulator answered (HEADER/CONFIG1/CONFIG2/START/STOP) and streams data
// frames on a ticker; the value generator is injected so tests can produce
// deterministic measurements rather than a random walk.
type PMU struct {
	Config1      *Config1Frame
	Config2      *ConfigFrame
	Header       *HeaderFrame
	Socket       net.Listener
	Clients      []net.Conn
	ClientsMutex sync.Mutex
	Running      bool
	SendData     map[net.Conn]bool
	SendDataMux  sync.Mutex
	logger       *log.Logger

	// Tick is called once per data-frame interval with the configuration
	// frame whose station values the next data frame packs; it mutates
	// PMUStationList values in place. Defaults to a
	// no-op (frames carry whatever values were last set).
	Tick func(counter int, cfg *ConfigFrame)
}

// NewPMU creates a new PMU instance.
func NewPMU() *PMU {
	pmu := &PMU{
		Clients:  make([]net.Conn, 0),
		SendData: make(map[net.Conn]bool),
		Running:  false,
		Tick:     func(int, *ConfigFrame) {},
	}

	pmu.Config2 = NewConfigFrame()
	pmu.Config2.IDCode = 7
	pmu.Config2.SOC = uint32(time.Now().Unix())
	pmu.Config2.FracSec = 0
	pmu.Config2.TimeBase = 1000000
	pmu.Config2.DataRate = 15

	pmu.Config1 = NewConfig1Frame()
	pmu.Config1.ConfigFrame = *pmu.Config2
	pmu.Config1.Sync = (SyncAA << 8) | SyncCfg1

	return pmu
}

// SetLogger sets the logger for the PMU.
func (p *PMU) SetLogger(logger *log.Logger) {
	p.logger = logger
}

func (p *PMU) log() *log.Logger {
	if p.logger == nil {
		p.logger = log.New()
	}
	return p.logger
}

// Start starts the PMU server.
func (p *PMU) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	p.Socket = listener
	p.Running = true

	p.log().WithField("address", address).Info("PMU test fixture listening")

	go func() {
		for p.Running {
			conn, err := p.Socket.Accept()
			if err != nil {
				if p.Running {
					p.log().WithError(err).Error("error accepting connection")
				}
				continue
			}

			p.ClientsMutex.Lock()
			p.Clients = append(p.Clients, conn)
			p.SendData[conn] = false
			p.ClientsMutex.Unlock()

			go p.handleClient(conn)
		}
	}()

	go p.dataSender()

	return nil
}

// Addr returns the listener address once Start has succeeded.
func (p *PMU) Addr() net.Addr {
	if p.Socket == nil {
		return nil
	}
	return p.Socket.Addr()
}

// Stop stops the PMU server.
func (p *PMU) Stop() {
	p.Running = false
	if p.Socket != nil {
		_ = p.Socket.Close()
	}

	p.ClientsMutex.Lock()
	for _, conn := range p.Clients {
		_ = conn.Close()
	}
	p.Clients = make([]net.Conn, 0)
	p.ClientsMutex.Unlock()
}

func (p *PMU) handleClient(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		p.ClientsMutex.Lock()
		delete(p.SendData, conn)
		for i, c := range p.Clients {
			if c == conn {
				p.Clients = append(p.Clients[:i], p.Clients[i+1:]...)
				break
			}
		}
		p.ClientsMutex.Unlock()
	}()

	buffer := make([]byte, 65536)

	for p.Running {
		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			return
		}

		n, err := conn.Read(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}

		// A single read may carry several command frames sent back to back.
		for off := 0; n-off >= 4; {
			frameSize := int(binary.BigEndian.Uint16(buffer[off+2 : off+4]))
			if frameSize < 4 || n-off < frameSize {
				break
			}
			frame, err := UnpackFrame(buffer[off:off+frameSize], nil)
			if err == nil {
				if cmd, ok := frame.(*CommandFrame); ok {
					p.handleCommand(conn, cmd)
				}
			}
			off += frameSize
		}
	}
}

func (p *PMU) handleCommand(conn net.Conn, cmd *CommandFrame) {
	var response []byte
	var err error

	switch cmd.CMD {
	case CmdStart:
		p.SendDataMux.Lock()
		p.SendData[conn] = true
		p.SendDataMux.Unlock()

	case CmdStop:
		p.SendDataMux.Lock()
		p.SendData[conn] = false
		p.SendDataMux.Unlock()

	case CmdHeader:
		if p.Header == nil {
			p.Header = NewHeaderFrame(p.Config2.IDCode, "")
		}
		p.Header.SetTime(nil, nil)
		response, err = p.Header.Pack()

	case CmdCfg1:
		p.Config1.SetTime(nil, nil)
		response, err = p.Config1.Pack()

	case CmdCfg2:
		p.Config2.SetTime(nil, nil)
		response, err = p.Config2.Pack()

	default:
		err = fmt.Errorf("unsupported command 0x%04X", cmd.CMD)
	}

	if response != nil && err == nil {
		_, _ = conn.Write(response)
	}
}

func (p *PMU) dataSender() {
	rate := p.Config2.DataRate
	if rate <= 0 {
		rate = 1
	}
	ticker := time.NewTicker(time.Duration(1000/rate) * time.Millisecond)
	defer ticker.Stop()

	counter := 0

	for p.Running {
		<-ticker.C

		df := NewDataFrame(p.Config2)
		df.IDCode = p.Config2.IDCode
		df.SetTime(nil, nil)

		p.Tick(counter, p.Config2)

		data, err := df.Pack()
		if err != nil {
			p.log().WithError(err).Error("error packing data frame")
			continue
		}

		p.ClientsMutex.Lock()
		for conn := range p.SendData {
			p.SendDataMux.Lock()
			sendEnabled := p.SendData[conn]
			p.SendDataMux.Unlock()

			if sendEnabled {
				go func(c net.Conn) {
					if err := c.SetWriteDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
						return
					}
					_, _ = c.Write(data)
				}(conn)
			}
		}
		p.ClientsMutex.Unlock()

		counter++
		if counter >= 360 {
			counter = 0
		}
	}
}

// LogConfiguration logs the complete PMU configuration, station by
// station, at info level.
func (p *PMU) LogConfiguration() {
	if p.Config2 == nil {
		p.log().Warn("no configuration available to log")
		return
	}

	p.log().WithFields(log.Fields{
		"id_code":   p.Config2.IDCode,
		"time_base": p.Config2.TimeBase,
		"data_rate": p.Config2.DataRate,
		"num_pmu":   p.Config2.NumPMU,
	}).Info("PMU configuration")

	for i, station := range p.Config2.PMUStationList {
		p.log().WithFields(log.Fields{
			"index":        i,
			"station_name": strings.TrimSpace(station.STN),
			"phasor":       station.Phnmr,
			"analog":       station.Annmr,
			"digital":      station.Dgnmr,
		}).Debug("PMU station configuration")
	}
}
