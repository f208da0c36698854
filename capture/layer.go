// Package capture records microtcp traffic as pcap and decodes it again with
// gopacket.
package capture

import (
	"encoding/binary"
	"fmt"

	"github.com/Clouded-Sabre/microtcp/lib"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeMicroTCP is the gopacket layer type for microtcp segments carried in UDP payloads.
var LayerTypeMicroTCP = gopacket.RegisterLayerType(1835, gopacket.LayerTypeMetadata{
	Name:    "MicroTCP",
	Decoder: gopacket.DecodeFunc(decodeMicroTCP),
})

// MicroTCP is a decoded microtcp segment.
type MicroTCP struct {
	layers.BaseLayer
	lib.Header
	ChecksumValid bool
}

func (m *MicroTCP) LayerType() gopacket.LayerType { return LayerTypeMicroTCP }

func (m *MicroTCP) CanDecode() gopacket.LayerClass { return LayerTypeMicroTCP }

func (m *MicroTCP) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

func (m *MicroTCP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < lib.HeaderLength {
		df.SetTruncated()
		return fmt.Errorf("microtcp segment too short: %d bytes", len(data))
	}
	if err := m.Header.Unmarshal(data); err != nil {
		return err
	}
	// Verify restores the checksum field, but gopacket may share data with
	// other layers, so work on a copy.
	seg := make([]byte, len(data))
	copy(seg, data)
	m.ChecksumValid = lib.Verify(seg)
	m.Contents = data[:lib.HeaderLength]
	m.Payload = data[lib.HeaderLength:]
	return nil
}

func decodeMicroTCP(data []byte, p gopacket.PacketBuilder) error {
	m := &MicroTCP{}
	if err := m.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(m)
	if len(m.Payload) == 0 {
		return nil
	}
	return p.NextDecoder(m.NextLayerType())
}

// Describe renders one UDP payload exchanged by microtcp endpoints.
func Describe(payload []byte) string {
	switch {
	case len(payload) == lib.LengthPrefixLength:
		return fmt.Sprintf("length-prefix %d", binary.BigEndian.Uint32(payload))
	case len(payload) < lib.HeaderLength:
		return fmt.Sprintf("malformed %d bytes", len(payload))
	}
	packet := gopacket.NewPacket(payload, LayerTypeMicroTCP, gopacket.Default)
	layer := packet.Layer(LayerTypeMicroTCP)
	if layer == nil {
		return fmt.Sprintf("undecodable %d bytes", len(payload))
	}
	m := layer.(*MicroTCP)
	s := m.Header.String()
	if !m.ChecksumValid {
		s += " [bad checksum]"
	}
	return s
}
