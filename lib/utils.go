package lib

import (
	"net"

	"github.com/google/netstack/tcpip/seqnum"
)

// ackOffset returns how far ack lies past base, with sequence wraparound in
// mind. Acks from before base return -1.
func ackOffset(base seqnum.Value, ack uint32) int {
	v := seqnum.Value(ack)
	if v.LessThan(base) {
		return -1
	}
	return int(base.Size(v))
}

// segmentCount returns how many MSS-sized segments carry total bytes.
func segmentCount(total, mss int) int {
	if total <= 0 {
		return 0
	}
	return (total + mss - 1) / mss
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	ua, ok1 := a.(*net.UDPAddr)
	ub, ok2 := b.(*net.UDPAddr)
	if ok1 && ok2 {
		return ua.IP.Equal(ub.IP) && ua.Port == ub.Port && ua.Zone == ub.Zone
	}
	return a.Network() == b.Network() && a.String() == b.String()
}
