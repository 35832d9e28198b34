// Package frameparser wraps the opaque protocol codec (protocol.PDC) into
// an explicit event stream: a single event enum delivered through a
// channel and consumed by the mapper's main loop, in place of the
// underlying codec's synchronous request/response calls.
package frameparser

import "github.com/gridmetric/phasoradapter/protocol"

// Kind enumerates the events the FrameParserAdapter emits.
type Kind int

const (
	ConnectionAttempt Kind = iota
	ConnectionEstablished
	ConnectionException
	ConnectionTerminated
	ReceivedConfigurationFrame
	ReceivedDataFrame
	ReceivedHeaderFrame
	ReceivedFrameBufferImage
	ParsingException
	ExceededParsingExceptionThreshold
	ConfigurationChanged
)

func (k Kind) String() string {
	switch k {
	case ConnectionAttempt:
		return "connectionAttempt"
	case ConnectionEstablished:
		return "connectionEstablished"
	case ConnectionException:
		return "connectionException"
	case ConnectionTerminated:
		return "connectionTerminated"
	case ReceivedConfigurationFrame:
		return "receivedConfigurationFrame"
	case ReceivedDataFrame:
		return "receivedDataFrame"
	case ReceivedHeaderFrame:
		return "receivedHeaderFrame"
	case ReceivedFrameBufferImage:
		return "receivedFrameBufferImage"
	case ParsingException:
		return "parsingException"
	case ExceededParsingExceptionThreshold:
		return "exceededParsingExceptionThreshold"
	case ConfigurationChanged:
		return "configurationChanged"
	default:
		return "unknown"
	}
}

// Event is one item in the adapter's event stream.
type Event struct {
	Kind      Kind
	DataFrame *protocol.DataFrame   // set for ReceivedDataFrame
	Config    *protocol.ConfigFrame // set for config-bearing events
	Header    *protocol.HeaderFrame // set for ReceivedHeaderFrame
	ByteCount int
	Err       error
}
