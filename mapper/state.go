package mapper

// connectionState is the mapper's connection state machine:
//
//	INIT --initialize--> IDLE
//	IDLE --attemptConnection--> CONNECTING
//	CONNECTING --connectionEstablished--> CONNECTED_NO_CONFIG
//	CONNECTING --connectionException--> CONNECTING (re-enter after backoff)
//	CONNECTED_NO_CONFIG --receivedConfigurationFrame--> STREAMING
//	CONNECTED_NO_CONFIG --[liveness tick, allowCachedConfig]--> STREAMING (via cache)
//	CONNECTED_NO_CONFIG --[liveness tick, no bytes]--> CONNECTING
//	STREAMING --configurationChanged--> CONNECTED_NO_CONFIG
//	STREAMING --connectionTerminated--> CONNECTING
//	* --attemptDisconnection--> IDLE
type connectionState int32

const (
	stateInit connectionState = iota
	stateIdle
	stateConnecting
	stateConnectedNoConfig
	stateStreaming
)

func (s connectionState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateConnectedNoConfig:
		return "connectedNoConfig"
	case stateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}
