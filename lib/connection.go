package lib

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/google/netstack/tcpip/seqnum"
	"github.com/pkg/errors"
	"github.com/smallnest/ringbuffer"
	"go.uber.org/zap"
)

type ConnectionConfig struct {
	MSS              int           // maximum payload bytes per segment
	InitWindow       int           // advertised receive window at connection start
	InitCwnd         int           // initial congestion window in bytes
	InitSsthresh     int           // initial slow-start threshold in bytes
	AckTimeout       time.Duration // wait bound for every data/ack receive
	HandshakeTimeout time.Duration // wait bound for handshake and teardown segments, 0 blocks
	ReadTimeout      time.Duration // wait bound for the length prefix in Recv, 0 blocks
	MaxRetries       int           // consecutive failed rounds/segments tolerated before giving up
	RecvBufLen       int           // size of the reassembly overflow buffer
	PoolSize         int           // number of segment buffers in the connection's ring pool
	PoolDebug        bool          // ring pool debug setting
	Logger           *zap.Logger   // nil means no logging
	ISN              func() uint32 // initial sequence number generator, nil means random
}

func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MSS:              MSS,
		InitWindow:       InitWindow,
		InitCwnd:         InitCwnd,
		InitSsthresh:     InitSsthresh,
		AckTimeout:       AckTimeout,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      0,
		MaxRetries:       10,
		RecvBufLen:       RecvBufLen,
		PoolSize:         64,
		PoolDebug:        false,
	}
}

// Validate checks the config for values the wire format cannot carry.
func (cfg *ConnectionConfig) Validate() error {
	switch {
	case cfg.MSS <= 0:
		return fmt.Errorf("invalid MSS %d", cfg.MSS)
	case cfg.MSS+HeaderLength > 65507:
		return fmt.Errorf("MSS %d does not fit in a UDP datagram", cfg.MSS)
	case cfg.InitWindow <= 0 || cfg.InitWindow > 0xffff:
		return fmt.Errorf("initial window %d out of range (1-65535)", cfg.InitWindow)
	case cfg.InitCwnd <= 0:
		return fmt.Errorf("invalid initial cwnd %d", cfg.InitCwnd)
	case cfg.InitSsthresh <= 0:
		return fmt.Errorf("invalid initial ssthresh %d", cfg.InitSsthresh)
	case cfg.AckTimeout <= 0:
		return fmt.Errorf("invalid ack timeout %v", cfg.AckTimeout)
	case cfg.RecvBufLen <= 0:
		return fmt.Errorf("invalid receive buffer length %d", cfg.RecvBufLen)
	case cfg.PoolSize <= 0:
		return fmt.Errorf("invalid pool size %d", cfg.PoolSize)
	}
	return nil
}

// Stats counts protocol events over the life of a connection
type Stats struct {
	SegmentsSent       int // data segments written, retransmissions included
	Retransmissions    int // data segments written more than once
	Timeouts           int // ack or data waits that expired
	DuplicateAcks      int // out-of-order acks seen by the sender
	DuplicateAcksSent  int // previous acks re-sent by the receiver
	FastRetransmits    int // rounds ended by duplicate acks rather than a timeout
	WindowHalvings     int // timeouts plus fast retransmits
	ChecksumFailures   int // segments discarded for a bad checksum
	SequenceMismatches int // segments or acks carrying unexpected numbers
}

// Connection is one microtcp link over a datagram endpoint. It is not safe for
// concurrent use.
type Connection struct {
	config     *ConnectionConfig
	conn       net.PacketConn
	isServer   bool
	state      State
	peerAddr   net.Addr
	initialSeq seqnum.Value
	seqNumber  seqnum.Value // next sequence number to send
	ackNumber  seqnum.Value // next sequence number expected from the peer
	initWindow uint32
	currWindow uint32
	peerWindow uint32
	cc         congestionControl
	recvBuffer *ringbuffer.RingBuffer // overflow bytes, allocated while Established
	pendingFin *Header                // peer FIN seen while sending, handled by the next Recv
	pool       *segmentPool
	stats      Stats
	log        *zap.Logger
}

// NewConnection wraps pc as a client-side connection in the Invalid state.
func NewConnection(pc net.PacketConn, cfg *ConnectionConfig) (*Connection, error) {
	if pc == nil {
		return nil, fmt.Errorf("nil packet connection")
	}
	if cfg == nil {
		cfg = DefaultConnectionConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("connection config: %v", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{
		config:     cfg,
		conn:       pc,
		state:      Invalid,
		initWindow: uint32(cfg.InitWindow),
		currWindow: uint32(cfg.InitWindow),
		peerWindow: uint32(cfg.InitWindow),
		cc:         newCongestionControl(uint32(cfg.MSS), uint32(cfg.InitCwnd), uint32(cfg.InitSsthresh)),
		pool:       newSegmentPool(cfg.PoolSize, cfg.MSS+HeaderLength, cfg.PoolDebug),
		log:        logger.With(zap.Stringer("local", pc.LocalAddr())),
	}
	return c, nil
}

// Bind creates a UDP endpoint at address and returns a server connection in
// the Listen state. Use transport.Listen plus Listen for non-default socket options.
func Bind(network, address string, cfg *ConnectionConfig) (*Connection, error) {
	pc, err := net.ListenPacket(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "bind %s", address)
	}
	c, err := NewListener(pc, cfg)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return c, nil
}

// NewListener wraps an already bound endpoint as a server connection.
func NewListener(pc net.PacketConn, cfg *ConnectionConfig) (*Connection, error) {
	c, err := NewConnection(pc, cfg)
	if err != nil {
		return nil, err
	}
	c.isServer = true
	c.state = Listen
	c.log.Debug("listening")
	return c, nil
}

func (c *Connection) State() State {
	return c.state
}

func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.peerAddr
}

func (c *Connection) InitialSeq() uint32 {
	return uint32(c.initialSeq)
}

func (c *Connection) SeqNumber() uint32 {
	return uint32(c.seqNumber)
}

func (c *Connection) AckNumber() uint32 {
	return uint32(c.ackNumber)
}

func (c *Connection) Window() uint32 {
	return c.currWindow
}

func (c *Connection) PeerWindow() uint32 {
	return c.peerWindow
}

func (c *Connection) Cwnd() uint32 {
	return c.cc.cwnd
}

func (c *Connection) Ssthresh() uint32 {
	return c.cc.ssthresh
}

func (c *Connection) Stats() Stats {
	return c.stats
}

// Buffered returns the number of received bytes waiting in the reassembly buffer.
func (c *Connection) Buffered() int {
	if c.recvBuffer == nil {
		return 0
	}
	return c.recvBuffer.Length()
}

// Close releases the connection's resources and closes the endpoint without
// running the teardown exchange.
func (c *Connection) Close() error {
	c.release()
	return c.conn.Close()
}

func (c *Connection) establish() {
	c.state = Established
	c.recvBuffer = ringbuffer.New(c.config.RecvBufLen)
	c.currWindow = c.advertisedWindow()
	c.log.Info("connection established",
		zap.Uint32("seq", uint32(c.seqNumber)),
		zap.Uint32("ack", uint32(c.ackNumber)),
		zap.Uint32("peerWindow", c.peerWindow))
}

func (c *Connection) release() {
	c.state = Closed
	if c.recvBuffer != nil {
		c.recvBuffer.Reset()
		c.recvBuffer = nil
	}
}

func (c *Connection) generateISN() seqnum.Value {
	if c.config.ISN != nil {
		return seqnum.Value(c.config.ISN())
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return seqnum.Value(time.Now().UnixNano())
	}
	return seqnum.Value(binary.BigEndian.Uint32(b[:]))
}

// readDatagram waits up to timeout (0 blocks) for a datagram from the peer.
// Datagrams from other addresses are dropped once the peer is known.
func (c *Connection) readDatagram(buf []byte, timeout time.Duration) (int, net.Addr, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, errors.Wrap(err, "set read deadline")
	}
	for {
		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				c.stats.Timeouts++
				return 0, nil, wrapError(Timeout, "read", err)
			}
			return 0, nil, errors.Wrap(err, "read datagram")
		}
		if c.peerAddr != nil && !sameAddr(addr, c.peerAddr) {
			c.log.Debug("dropping datagram from unknown address", zap.Stringer("from", addr), zap.Int("size", n))
			continue
		}
		return n, addr, nil
	}
}

// readControl waits for a header-sized datagram and parses it. Datagrams of
// any other size are passed to other, which may be nil.
func (c *Connection) readControl(timeout time.Duration, other func(b []byte) error) (Header, net.Addr, error) {
	elem, buf, err := c.pool.get()
	if err != nil {
		return Header{}, nil, err
	}
	defer c.pool.release(elem)

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		remaining := time.Duration(0)
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				c.stats.Timeouts++
				return Header{}, nil, newError(Timeout, "read", "no control segment within %v", timeout)
			}
		}
		n, addr, err := c.readDatagram(buf, remaining)
		if err != nil {
			return Header{}, nil, err
		}
		if n != HeaderLength {
			if other != nil {
				if err := other(buf[:n]); err != nil {
					return Header{}, nil, err
				}
			}
			continue
		}
		if !Verify(buf[:n]) {
			c.stats.ChecksumFailures++
			c.log.Warn("control segment failed checksum, discarding", zap.Stringer("from", addr))
			continue
		}
		var h Header
		h.Unmarshal(buf[:n])
		return h, addr, nil
	}
}

// writeDatagram sends b to the peer.
func (c *Connection) writeDatagram(b []byte, addr net.Addr) error {
	if addr == nil {
		addr = c.peerAddr
	}
	if _, err := c.conn.WriteTo(b, addr); err != nil {
		return errors.Wrapf(err, "write to %v", addr)
	}
	return nil
}

// sendControl sends a payload-less segment built from the current counters.
func (c *Connection) sendControl(control uint16, addr net.Addr) error {
	return c.sendHeader(BuildHeader(c, control), addr)
}

func (c *Connection) sendHeader(h Header, addr net.Addr) error {
	var b [HeaderLength]byte
	h.Marshal(b[:])
	Seal(b[:])
	c.log.Debug("send", zap.Stringer("header", h))
	return c.writeDatagram(b[:], addr)
}

// advertisedWindow is the free space of the reassembly buffer, capped by the
// initial window.
func (c *Connection) advertisedWindow() uint32 {
	if c.recvBuffer == nil {
		return c.initWindow
	}
	return min(c.initWindow, uint32(c.recvBuffer.Free()))
}
