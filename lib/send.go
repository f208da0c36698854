package lib

import (
	"io"

	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Send transmits p as one length-prefixed message and blocks until the peer
// has acknowledged all of it. It returns the number of payload bytes the peer
// confirmed.
func (c *Connection) Send(p []byte) (int, error) {
	if c.state != Established {
		return 0, newError(ProtocolViolation, "send", "connection in state %v", c.state)
	}

	elem, buf, err := c.pool.get()
	if err != nil {
		return 0, err
	}
	defer c.pool.release(elem)

	var prefix [LengthPrefixLength]byte
	if err := c.writeDatagram(encodeLengthPrefix(prefix[:], len(p)), nil); err != nil {
		return 0, err
	}

	mss := c.config.MSS
	total := len(p)
	base := c.seqNumber
	delivered := 0 // only ever moves forward
	highest := 0   // end offset of the furthest byte transmitted so far
	retry := newRetrier(c.config.MaxRetries)

	for delivered < total {
		window := int(min(c.peerWindow, c.cc.cwnd))
		if window == 0 {
			window = 1
		}
		roundStart := delivered
		roundEnd := delivered + min(window, total-delivered)

		// the length prefix may have been lost along with the first round
		if roundStart == 0 && highest > 0 {
			if err := c.writeDatagram(prefix[:], nil); err != nil {
				c.seqNumber = base.Add(seqnum.Size(delivered))
				return delivered, err
			}
		}

		c.cc.startRound()
		var ends []int
		for off := roundStart; off < roundEnd; off += mss {
			end := min(off+mss, roundEnd)
			if err := c.sendData(base, off, p[off:end], buf); err != nil {
				c.seqNumber = base.Add(seqnum.Size(delivered))
				return delivered, err
			}
			if off < highest {
				c.stats.Retransmissions++
			}
			ends = append(ends, end)
		}
		highest = max(highest, roundEnd)

		confirmed := roundStart
		dups := 0
		dupOffset := -1
		timedOut := false
		for _, end := range ends {
			h, err := c.readAck(buf)
			if err != nil {
				if errors.Is(err, ErrTimeout) {
					timedOut = true
					break
				}
				if errors.Is(err, ErrChecksumMismatch) {
					continue
				}
				c.seqNumber = base.Add(seqnum.Size(delivered))
				return delivered, err
			}
			c.peerWindow = uint32(h.Window)
			off := ackOffset(base, h.AckNumber)
			if off == end {
				confirmed = end
				c.cc.onAck()
				continue
			}
			dups++
			c.stats.DuplicateAcks++
			if off >= 0 && off <= highest {
				dupOffset = off
			}
			c.log.Debug("out-of-order ack",
				zap.Int("expected", end), zap.Int("got", off), zap.Int("duplicates", dups))
		}

		next := confirmed
		switch {
		case timedOut:
			c.cc.onTimeout()
			c.stats.WindowHalvings++
			c.log.Debug("ack timeout, restarting from last confirmed byte",
				zap.Int("offset", confirmed), zap.Uint32("cwnd", c.cc.cwnd), zap.Uint32("ssthresh", c.cc.ssthresh))
		case dups > 0:
			c.cc.onDuplicates()
			c.stats.FastRetransmits++
			c.stats.WindowHalvings++
			if dupOffset > next {
				next = min(dupOffset, highest)
			}
			c.log.Debug("duplicate acks, retransmitting lost tail",
				zap.Int("duplicates", dups), zap.Int("offset", next), zap.Uint32("cwnd", c.cc.cwnd), zap.Uint32("ssthresh", c.cc.ssthresh))
		}

		if next > delivered {
			delivered = next
			retry.progress()
			continue
		}
		if !retry.fail() {
			c.seqNumber = base.Add(seqnum.Size(delivered))
			return delivered, newError(Timeout, "send", "no acknowledgement progress after %d attempts", retry.attempts())
		}
	}

	c.seqNumber = base.Add(seqnum.Size(delivered))
	return delivered, nil
}

// Write implements io.Writer on top of Send.
func (c *Connection) Write(p []byte) (int, error) {
	n, err := c.Send(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// sendData writes one data segment carrying payload at offset off from base.
func (c *Connection) sendData(base seqnum.Value, off int, payload []byte, buf []byte) error {
	h := BuildHeader(c, ACKFlag)
	h.SeqNumber = uint32(base.Add(seqnum.Size(off)))
	segment, err := marshalSegment(&h, payload, buf)
	if err != nil {
		return wrapError(AllocationFailure, "send", err)
	}
	if err := c.writeDatagram(segment, nil); err != nil {
		return err
	}
	c.stats.SegmentsSent++
	return nil
}

// readAck waits up to the ack timeout for the next acknowledgement from the
// peer. A FIN riding on the ack is kept for the next Recv or Shutdown.
func (c *Connection) readAck(buf []byte) (Header, error) {
	for {
		n, _, err := c.readDatagram(buf, c.config.AckTimeout)
		if err != nil {
			return Header{}, err
		}
		if n > HeaderLength {
			// the peer is retransmitting data whose last ack it missed
			if err := c.reackStale(buf[:n]); err != nil {
				return Header{}, err
			}
			continue
		}
		if n != HeaderLength {
			c.log.Debug("ignoring non-ack datagram while sending", zap.Int("size", n))
			continue
		}
		segment := buf[:n]
		if !Verify(segment) {
			c.stats.ChecksumFailures++
			return Header{}, newError(ChecksumMismatch, "send", "corrupt acknowledgement")
		}
		var h Header
		h.Unmarshal(segment)
		if h.Has(FINFlag) {
			fin := h
			c.pendingFin = &fin
			c.log.Info("peer FIN while sending, deferring termination", zap.Stringer("header", h))
		}
		if !h.Has(ACKFlag) {
			continue
		}
		return h, nil
	}
}
