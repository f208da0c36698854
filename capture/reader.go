package capture

import (
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// Record is one UDP datagram read back from a capture.
type Record struct {
	Timestamp time.Time
	Src, Dst  string
	Payload   []byte
}

// ReadAll decodes every UDP datagram in a pcap stream written by Conn.
func ReadAll(r io.Reader) ([]Record, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open pcap")
	}
	var records []Record
	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, errors.Wrap(err, "read packet")
		}
		packet := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.Default)
		ipLayer := packet.Layer(layers.LayerTypeIPv4)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if ipLayer == nil || udpLayer == nil {
			continue
		}
		ip := ipLayer.(*layers.IPv4)
		udp := udpLayer.(*layers.UDP)
		records = append(records, Record{
			Timestamp: ci.Timestamp,
			Src:       endpointString(ip.SrcIP.String(), int(udp.SrcPort)),
			Dst:       endpointString(ip.DstIP.String(), int(udp.DstPort)),
			Payload:   udp.Payload,
		})
	}
}

func endpointString(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
