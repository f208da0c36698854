package lib

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Header represents the fixed 32-byte microtcp segment header
type Header struct {
	SeqNumber uint32 // SeqNumber is the sender's sequence number
	AckNumber uint32 // AckNumber is the next byte the sender expects from its peer
	Control   uint16 // Control holds the ACK/SYN/FIN bits
	Window    uint16 // Window specifies the number of bytes the sender is willing to receive
	DataLen   uint32 // DataLen is the payload length following the header
	Checksum  uint32 // Checksum is the CRC-32 of the whole segment with this field zeroed
}

// Marshal writes the header into the first HeaderLength bytes of b.
// The reserved bytes are zeroed.
func (h *Header) Marshal(b []byte) error {
	if len(b) < HeaderLength {
		return fmt.Errorf("buffer size (%d) is too small to hold the header (%d)", len(b), HeaderLength)
	}
	binary.BigEndian.PutUint32(b[0:4], h.SeqNumber)
	binary.BigEndian.PutUint32(b[4:8], h.AckNumber)
	binary.BigEndian.PutUint16(b[8:10], h.Control)
	binary.BigEndian.PutUint16(b[10:12], h.Window)
	binary.BigEndian.PutUint32(b[12:16], h.DataLen)
	for i := 16; i < checksumOffset; i++ {
		b[i] = 0
	}
	binary.BigEndian.PutUint32(b[checksumOffset:HeaderLength], h.Checksum)
	return nil
}

// Unmarshal parses the header from the first HeaderLength bytes of b.
func (h *Header) Unmarshal(b []byte) error {
	if len(b) < HeaderLength {
		return fmt.Errorf("segment too short: %d bytes", len(b))
	}
	h.SeqNumber = binary.BigEndian.Uint32(b[0:4])
	h.AckNumber = binary.BigEndian.Uint32(b[4:8])
	h.Control = binary.BigEndian.Uint16(b[8:10])
	h.Window = binary.BigEndian.Uint16(b[10:12])
	h.DataLen = binary.BigEndian.Uint32(b[12:16])
	h.Checksum = binary.BigEndian.Uint32(b[checksumOffset:HeaderLength])
	return nil
}

// Has reports whether every bit in flags is set.
func (h *Header) Has(flags uint16) bool {
	return h.Control&flags == flags
}

// Is reports whether the control field is exactly flags.
func (h *Header) Is(flags uint16) bool {
	return h.Control == flags
}

func (h Header) String() string {
	return fmt.Sprintf("seq: %d ack: %d flags: %s win: %d len: %d xsum: 0x%08x",
		h.SeqNumber, h.AckNumber, FlagString(h.Control), h.Window, h.DataLen, h.Checksum)
}

// FlagString renders control bits the way tcpdump does, e.g. "SA" for SYN+ACK.
func FlagString(control uint16) string {
	s := ""
	if control&SYNFlag != 0 {
		s += "S"
	}
	if control&FINFlag != 0 {
		s += "F"
	}
	if control&ACKFlag != 0 {
		s += "A"
	}
	if s == "" {
		s = "."
	}
	return s
}

// Checksum is the integrity code used by Seal and Verify.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// BuildHeader fills a control header from the connection's current counters.
// The checksum covers the serialized 32-byte header.
func BuildHeader(c *Connection, control uint16) Header {
	h := Header{
		SeqNumber: uint32(c.seqNumber),
		AckNumber: uint32(c.ackNumber),
		Control:   control,
		Window:    windowField(c.currWindow),
	}
	var b [HeaderLength]byte
	h.Marshal(b[:])
	h.Checksum = Checksum(b[:])
	return h
}

// Seal zeroes the checksum field of segment, computes the checksum over the
// full segment and stores it at its offset.
func Seal(segment []byte) error {
	if len(segment) < HeaderLength {
		return fmt.Errorf("segment too short to seal: %d bytes", len(segment))
	}
	binary.BigEndian.PutUint32(segment[checksumOffset:HeaderLength], 0)
	binary.BigEndian.PutUint32(segment[checksumOffset:HeaderLength], Checksum(segment))
	return nil
}

// Verify recomputes the checksum of segment and compares it with the stored
// value. segment is left as it was found.
func Verify(segment []byte) bool {
	if len(segment) < HeaderLength {
		return false
	}
	field := segment[checksumOffset:HeaderLength]
	stored := binary.BigEndian.Uint32(field)
	binary.BigEndian.PutUint32(field, 0)
	computed := Checksum(segment)
	binary.BigEndian.PutUint32(field, stored)
	return computed == stored
}

// marshalSegment writes header h and payload into buf and seals the result.
// It returns the segment slice of buf.
func marshalSegment(h *Header, payload []byte, buf []byte) ([]byte, error) {
	n := HeaderLength + len(payload)
	if n > len(buf) {
		return nil, fmt.Errorf("buffer size (%d) is too small to hold the segment (%d)", len(buf), n)
	}
	h.DataLen = uint32(len(payload))
	h.Checksum = 0
	if err := h.Marshal(buf); err != nil {
		return nil, err
	}
	copy(buf[HeaderLength:], payload)
	segment := buf[:n]
	if err := Seal(segment); err != nil {
		return nil, err
	}
	h.Checksum = binary.BigEndian.Uint32(segment[checksumOffset:HeaderLength])
	return segment, nil
}

func encodeLengthPrefix(b []byte, total int) []byte {
	binary.BigEndian.PutUint32(b[:LengthPrefixLength], uint32(total))
	return b[:LengthPrefixLength]
}

func decodeLengthPrefix(b []byte) int {
	return int(binary.BigEndian.Uint32(b[:LengthPrefixLength]))
}

func windowField(w uint32) uint16 {
	if w > 0xffff {
		return 0xffff
	}
	return uint16(w)
}
