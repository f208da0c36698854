package capture

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const snapLen = 65536

// Conn wraps a PacketConn and writes every datagram it sends or receives to a
// pcap stream as a raw IPv4/UDP packet.
type Conn struct {
	net.PacketConn
	mu  sync.Mutex
	w   *pcapgo.Writer
	log *zap.Logger
}

func NewConn(pc net.PacketConn, w io.Writer, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
		return nil, errors.Wrap(err, "write pcap header")
	}
	return &Conn{PacketConn: pc, w: pw, log: logger}, nil
}

func (c *Conn) WriteTo(b []byte, addr net.Addr) (int, error) {
	n, err := c.PacketConn.WriteTo(b, addr)
	if err == nil {
		c.record(c.LocalAddr(), addr, b[:n])
	}
	return n, err
}

func (c *Conn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, addr, err := c.PacketConn.ReadFrom(b)
	if err == nil {
		c.record(addr, c.LocalAddr(), b[:n])
	}
	return n, addr, err
}

func (c *Conn) record(src, dst net.Addr, payload []byte) {
	data, err := encapsulate(src, dst, payload)
	if err != nil {
		c.log.Warn("capture: cannot encode datagram", zap.Error(err))
		return
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.WritePacket(ci, data); err != nil {
		c.log.Warn("capture: write failed", zap.Error(err))
	}
}

// encapsulate builds an IPv4/UDP packet around payload so standard tools can read the capture.
func encapsulate(src, dst net.Addr, payload []byte) ([]byte, error) {
	srcIP, srcPort := endpoint(src)
	dstIP, dstPort := endpoint(dst)
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func endpoint(addr net.Addr) (net.IP, int) {
	if ua, ok := addr.(*net.UDPAddr); ok {
		if ip4 := ua.IP.To4(); ip4 != nil {
			return ip4, ua.Port
		}
		return net.IPv4zero.To4(), ua.Port
	}
	return net.IPv4zero.To4(), 0
}
