package lib

import (
	"github.com/google/netstack/tcpip/seqnum"
	"go.uber.org/zap"
)

// Shutdown runs the host side of the 4-way termination:
// FIN+ACK -> ACK -> FIN+ACK -> ACK. The peer answers from inside its Recv.
// If the peer already sent its FIN during a Send, Shutdown answers that
// termination instead.
func (c *Connection) Shutdown() error {
	if c.state != Established {
		return newError(ProtocolViolation, "shutdown", "connection in state %v", c.state)
	}
	if c.pendingFin != nil {
		fin := *c.pendingFin
		c.pendingFin = nil
		return c.respondToFin(fin)
	}

	if err := c.sendControl(FINFlag|ACKFlag, nil); err != nil {
		return err
	}
	c.seqNumber = c.seqNumber.Add(1)
	c.state = ClosingByPeer

	finAcked := false
	for {
		h, _, err := c.readControl(c.config.HandshakeTimeout, c.reackStale)
		if err != nil {
			return err
		}
		switch {
		case h.Is(FINFlag | ACKFlag):
			if seqnum.Value(h.AckNumber) != c.seqNumber {
				c.stats.SequenceMismatches++
				c.log.Warn("peer FIN does not acknowledge ours", zap.Stringer("header", h))
				continue
			}
			if !finAcked {
				c.log.Debug("peer FIN arrived before its ACK")
			}
			c.ackNumber = seqnum.Value(h.SeqNumber).Add(1)
			c.state = ClosingByHost
			if err := c.sendControl(ACKFlag, nil); err != nil {
				return err
			}
			c.release()
			c.log.Info("connection closed")
			return nil
		case h.Is(ACKFlag):
			if seqnum.Value(h.AckNumber) == c.seqNumber {
				finAcked = true
				continue
			}
			c.log.Debug("ignoring stale ack during shutdown", zap.Stringer("header", h))
		default:
			c.log.Warn("unexpected segment during shutdown", zap.Stringer("header", h))
		}
	}
}

// respondToFin runs the responder side of the 4-way termination after a
// FIN+ACK from the peer.
func (c *Connection) respondToFin(fin Header) error {
	if seqnum.Value(fin.AckNumber) != c.seqNumber {
		c.log.Warn("peer FIN acknowledges unexpected sequence", zap.Stringer("header", fin), zap.Uint32("seq", uint32(c.seqNumber)))
	}
	c.ackNumber = seqnum.Value(fin.SeqNumber).Add(1)
	c.state = ClosingByPeer

	if err := c.sendControl(ACKFlag, nil); err != nil {
		return err
	}
	c.seqNumber = c.seqNumber.Add(1)

	if err := c.sendControl(FINFlag|ACKFlag, nil); err != nil {
		return err
	}
	c.seqNumber = c.seqNumber.Add(1)

	for {
		h, _, err := c.readControl(c.config.HandshakeTimeout, c.reackStale)
		if err != nil {
			return err
		}
		if h.Is(ACKFlag) && seqnum.Value(h.AckNumber) == c.seqNumber {
			c.release()
			c.log.Info("connection closed by peer")
			return nil
		}
		c.log.Debug("waiting for final ACK, ignoring", zap.Stringer("header", h))
	}
}

// reackStale answers data segments that arrive during termination with the
// current ack, so a peer still waiting on its last ack can finish.
func (c *Connection) reackStale(b []byte) error {
	if len(b) <= HeaderLength {
		return nil
	}
	if !Verify(b) {
		c.stats.ChecksumFailures++
		return nil
	}
	c.stats.DuplicateAcksSent++
	return c.sendControl(ACKFlag, nil)
}
