package lib

import (
	"net"

	"github.com/google/netstack/tcpip/seqnum"
	"go.uber.org/zap"
)

// Connect runs the client side of the 3-way handshake with raddr. On failure
// the connection stays Invalid and may be connected again.
func (c *Connection) Connect(raddr net.Addr) error {
	if c.state != Invalid {
		return newError(ProtocolViolation, "connect", "connection in state %v", c.state)
	}
	if raddr == nil {
		return newError(ProtocolViolation, "connect", "nil remote address")
	}
	c.peerAddr = raddr
	c.initialSeq = c.generateISN()
	c.seqNumber = c.initialSeq
	c.ackNumber = 0
	c.currWindow = c.initWindow

	// SYN
	if err := c.sendControl(SYNFlag, nil); err != nil {
		c.peerAddr = nil
		return err
	}
	c.seqNumber = c.seqNumber.Add(1)

	// SYN+ACK
	h, _, err := c.readControl(c.config.HandshakeTimeout, nil)
	if err != nil {
		c.peerAddr = nil
		return err
	}
	if !h.Is(SYNFlag|ACKFlag) || seqnum.Value(h.AckNumber) != c.seqNumber {
		c.peerAddr = nil
		return newError(ProtocolViolation, "connect", "expected SYN+ACK with ack %d, got %v", uint32(c.seqNumber), h)
	}
	c.peerWindow = uint32(h.Window)
	c.ackNumber = seqnum.Value(h.SeqNumber).Add(1)

	// ACK
	if err := c.sendControl(ACKFlag, nil); err != nil {
		c.peerAddr = nil
		return err
	}

	c.log = c.log.With(zap.Stringer("peer", raddr))
	c.establish()
	return nil
}

// Accept waits for a client SYN and completes the server side of the 3-way
// handshake. On failure the connection stays in Listen.
func (c *Connection) Accept() error {
	if c.state != Listen {
		return newError(ProtocolViolation, "accept", "connection in state %v", c.state)
	}

	// SYN
	h, addr, err := c.readControl(c.config.HandshakeTimeout, nil)
	if err != nil {
		return err
	}
	if !h.Is(SYNFlag) {
		return newError(ProtocolViolation, "accept", "expected SYN, got %v", h)
	}
	c.peerAddr = addr
	c.peerWindow = uint32(h.Window)
	c.ackNumber = seqnum.Value(h.SeqNumber)
	c.initialSeq = c.generateISN()
	c.seqNumber = c.initialSeq
	c.currWindow = c.initWindow

	// SYN+ACK acknowledges the client's SYN
	synAck := BuildHeader(c, SYNFlag|ACKFlag)
	synAck.AckNumber = uint32(c.ackNumber.Add(1))
	if err := c.sendHeader(synAck, addr); err != nil {
		c.peerAddr = nil
		return err
	}
	c.seqNumber = c.seqNumber.Add(1)

	// ACK
	h, _, err = c.readControl(c.config.HandshakeTimeout, nil)
	if err != nil {
		c.peerAddr = nil
		return err
	}
	if !h.Is(ACKFlag) || seqnum.Value(h.AckNumber) != c.seqNumber || seqnum.Value(h.SeqNumber) != c.ackNumber.Add(1) {
		c.peerAddr = nil
		return newError(ProtocolViolation, "accept", "expected ACK with seq %d ack %d, got %v",
			uint32(c.ackNumber.Add(1)), uint32(c.seqNumber), h)
	}
	c.ackNumber = c.ackNumber.Add(1)

	c.log = c.log.With(zap.Stringer("peer", addr))
	c.establish()
	return nil
}
