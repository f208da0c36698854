package lib

import (
	"io"

	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Recv receives the next message into p and returns the number of bytes
// written to p. Bytes of the message that do not fit in p are kept in the
// connection's reassembly buffer and returned by later calls. When the peer
// terminates the connection Recv answers the termination and returns io.EOF.
func (c *Connection) Recv(p []byte) (int, error) {
	if c.recvBuffer != nil && !c.recvBuffer.IsEmpty() {
		if len(p) == 0 {
			return 0, nil
		}
		n, _ := c.recvBuffer.Read(p)
		c.currWindow = c.advertisedWindow()
		return n, nil
	}
	if c.pendingFin != nil {
		fin := *c.pendingFin
		c.pendingFin = nil
		if err := c.respondToFin(fin); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	if c.state == Closed {
		return 0, io.EOF
	}
	if c.state != Established {
		return 0, newError(ProtocolViolation, "recv", "connection in state %v", c.state)
	}

	elem, buf, err := c.pool.get()
	if err != nil {
		return 0, err
	}
	defer c.pool.release(elem)

	mss := c.config.MSS
	total := -1    // announced message length, unknown until the prefix arrives
	assembled := 0 // bytes accepted so far, including overflow
	n := 0         // bytes written to p
	retry := newRetrier(c.config.MaxRetries)

	for total < 0 || assembled < total {
		timeout := c.config.AckTimeout
		if total < 0 {
			timeout = c.config.ReadTimeout
		}
		size, _, err := c.readDatagram(buf, timeout)
		if err != nil {
			if !errors.Is(err, ErrTimeout) || total < 0 {
				return n, err
			}
			c.log.Debug("timeout waiting for data, restarting round", zap.Int("assembled", assembled), zap.Int("total", total))
			if !retry.fail() {
				return n, newError(Timeout, "recv", "no data after %d attempts", retry.attempts())
			}
			continue
		}
		segment := buf[:size]

		switch {
		case size == LengthPrefixLength:
			if assembled > 0 {
				c.log.Debug("ignoring length prefix in the middle of a message")
				continue
			}
			announced := decodeLengthPrefix(segment)
			capacity := len(p) + c.recvBuffer.Free()
			if announced > capacity {
				return 0, newError(ProtocolViolation, "recv", "incoming message of %d bytes exceeds buffer capacity %d", announced, capacity)
			}
			total = announced
			c.log.Debug("incoming message",
				zap.Int("length", total), zap.Int("segments", segmentCount(total, mss)))

		case size == HeaderLength:
			if !Verify(segment) {
				c.stats.ChecksumFailures++
				c.log.Warn("control segment failed checksum, discarding")
				continue
			}
			var h Header
			h.Unmarshal(segment)
			switch {
			case h.Is(FINFlag | ACKFlag):
				if err := c.respondToFin(h); err != nil {
					return n, err
				}
				return n, io.EOF
			case h.Is(ACKFlag):
				if seqnum.Value(h.AckNumber) != c.seqNumber || seqnum.Value(h.SeqNumber) != c.ackNumber {
					c.stats.SequenceMismatches++
					c.log.Debug("unexpected acknowledgement",
						zap.Error(newError(SequenceMismatch, "recv", "%v", h)))
				}
			default:
				c.log.Warn("unexpected control segment",
					zap.Error(newError(ProtocolViolation, "recv", "%v", h)))
			}

		case size < HeaderLength:
			c.log.Warn("malformed datagram", zap.Int("size", size))

		default:
			var h Header
			h.Unmarshal(segment)
			payload := segment[HeaderLength:]
			if rejectErr := c.checkData(segment, &h, total, assembled); rejectErr != nil {
				c.log.Debug("rejecting segment", zap.Error(rejectErr), zap.Stringer("header", h))
				if err := c.sendControl(ACKFlag, nil); err != nil {
					return n, err
				}
				c.stats.DuplicateAcksSent++
				if total >= 0 && !retry.fail() {
					return n, newError(SequenceMismatch, "recv", "no acceptable segment after %d attempts", retry.attempts())
				}
				continue
			}

			k := copy(p[n:], payload)
			n += k
			if k < len(payload) {
				if _, err := c.recvBuffer.Write(payload[k:]); err != nil {
					return n, wrapError(AllocationFailure, "recv", err)
				}
			}
			assembled += len(payload)
			c.ackNumber = c.ackNumber.Add(seqnum.Size(len(payload)))
			c.currWindow = c.advertisedWindow()
			if err := c.sendControl(ACKFlag, nil); err != nil {
				return n, err
			}
			retry.progress()
		}
	}
	return n, nil
}

// checkData validates a data segment against the receive state. Checksum and
// sequence failures are treated alike by the caller.
func (c *Connection) checkData(segment []byte, h *Header, total, assembled int) error {
	payloadLen := len(segment) - HeaderLength
	switch {
	case !Verify(segment):
		c.stats.ChecksumFailures++
		return newError(ChecksumMismatch, "recv", "data segment seq %d", h.SeqNumber)
	case int(h.DataLen) != payloadLen:
		return newError(ProtocolViolation, "recv", "data_len %d does not match payload %d", h.DataLen, payloadLen)
	case seqnum.Value(h.SeqNumber) != c.ackNumber:
		c.stats.SequenceMismatches++
		return newError(SequenceMismatch, "recv", "expected seq %d, got %d", uint32(c.ackNumber), h.SeqNumber)
	case total < 0:
		return newError(ProtocolViolation, "recv", "data segment before length prefix")
	case assembled+payloadLen > total:
		return newError(ProtocolViolation, "recv", "segment overruns announced length %d", total)
	}
	return nil
}

// Read implements io.Reader on top of Recv. Empty messages are skipped.
func (c *Connection) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := c.Recv(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
