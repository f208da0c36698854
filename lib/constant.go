package lib

import "time"

// Connection states
type State int

const (
	Invalid       State = iota // freshly created or failed handshake
	Listen                     // server endpoint bound, waiting for SYN
	Established                // 3-way handshake completed
	ClosingByHost              // 4-way termination: peer FIN received during our own shutdown
	ClosingByPeer              // 4-way termination: FIN sent or received, waiting for the rest
	Closed                     // terminal state, buffers released
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "Invalid"
	case Listen:
		return "Listen"
	case Established:
		return "Established"
	case ClosingByHost:
		return "ClosingByHost"
	case ClosingByPeer:
		return "ClosingByPeer"
	case Closed:
		return "Closed"
	}
	return "Unknown"
}

// Flag constants
const (
	// microtcp control bits within the 16-bit control field
	ACKFlag uint16 = 1 << 11
	SYNFlag uint16 = 1 << 13
	FINFlag uint16 = 1 << 14
)

const (
	HeaderLength       = 32 // fixed header, no options
	LengthPrefixLength = 4  // standalone datagram announcing a send's total length
	checksumOffset     = 28
)

// Protocol defaults
const (
	MSS          = 1400
	RecvBufLen   = 8192
	InitWindow   = RecvBufLen
	InitCwnd     = 3 * MSS
	InitSsthresh = InitWindow
	AckTimeoutUs = 200000 // microseconds

	AckTimeout = AckTimeoutUs * time.Microsecond
)
