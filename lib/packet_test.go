package lib

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHeaderLayout(t *testing.T) {
	h := Header{
		SeqNumber: 0x01020304,
		AckNumber: 0x05060708,
		Control:   SYNFlag | ACKFlag,
		Window:    0x0a0b,
		DataLen:   0x0c0d0e0f,
		Checksum:  0xdeadbeef,
	}
	b := bytes.Repeat([]byte{0xff}, HeaderLength)
	if err := h.Marshal(b); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	expected := []byte{
		0x01, 0x02, 0x03, 0x04, // seq
		0x05, 0x06, 0x07, 0x08, // ack
		0x28, 0x00, // control
		0x0a, 0x0b, // window
		0x0c, 0x0d, 0x0e, 0x0f, // data_len
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // reserved
		0xde, 0xad, 0xbe, 0xef, // checksum
	}
	if diff := cmp.Diff(expected, b); diff != "" {
		t.Errorf("wire layout mismatch (-want +got):\n%s", diff)
	}

	var parsed Header
	if err := parsed.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(h, parsed); diff != "" {
		t.Errorf("parsed header mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderShortBuffer(t *testing.T) {
	var h Header
	if err := h.Marshal(make([]byte, HeaderLength-1)); err == nil {
		t.Errorf("Marshal into a short buffer should fail")
	}
	if err := h.Unmarshal(make([]byte, HeaderLength-1)); err == nil {
		t.Errorf("Unmarshal of a short buffer should fail")
	}
}

func TestSealVerify(t *testing.T) {
	h := Header{SeqNumber: 1000, AckNumber: 2000, Control: ACKFlag, Window: 8192}
	payload := []byte("hello, microtcp")
	buf := make([]byte, HeaderLength+MSS)
	segment, err := marshalSegment(&h, payload, buf)
	if err != nil {
		t.Fatalf("marshalSegment: %v", err)
	}
	if h.DataLen != uint32(len(payload)) {
		t.Errorf("DataLen = %d, expected %d", h.DataLen, len(payload))
	}
	if !Verify(segment) {
		t.Fatalf("freshly sealed segment failed verification")
	}
	if got := binary.BigEndian.Uint32(segment[checksumOffset:]); got != h.Checksum {
		t.Errorf("header checksum 0x%08x does not match wire 0x%08x", h.Checksum, got)
	}

	// Verify must leave the segment untouched
	before := append([]byte(nil), segment...)
	Verify(segment)
	if !bytes.Equal(before, segment) {
		t.Errorf("Verify modified the segment")
	}

	// any single bit flipped outside the checksum field is detected
	for i := 0; i < len(segment); i++ {
		if i >= checksumOffset && i < HeaderLength {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			segment[i] ^= 1 << bit
			if Verify(segment) {
				t.Errorf("flip of byte %d bit %d not detected", i, bit)
			}
			segment[i] ^= 1 << bit
		}
	}

	// and a changed checksum field fails too
	segment[HeaderLength-1] ^= 0x01
	if Verify(segment) {
		t.Errorf("modified checksum field not detected")
	}
}

func TestVerifyShortSegment(t *testing.T) {
	if Verify(make([]byte, HeaderLength-1)) {
		t.Errorf("short segment should not verify")
	}
}

func TestMarshalSegmentTooLarge(t *testing.T) {
	var h Header
	if _, err := marshalSegment(&h, make([]byte, 100), make([]byte, HeaderLength+10)); err == nil {
		t.Errorf("expected an error for a payload larger than the buffer")
	}
}

func TestBuildHeader(t *testing.T) {
	c := &Connection{seqNumber: 42, ackNumber: 77, currWindow: 100000}
	h := BuildHeader(c, SYNFlag|ACKFlag)

	expected := Header{SeqNumber: 42, AckNumber: 77, Control: SYNFlag | ACKFlag, Window: 0xffff, Checksum: h.Checksum}
	if diff := cmp.Diff(expected, h); diff != "" {
		t.Errorf("BuildHeader mismatch (-want +got):\n%s", diff)
	}

	var b [HeaderLength]byte
	h.Marshal(b[:])
	if !Verify(b[:]) {
		t.Errorf("built header does not verify")
	}
}

func TestFlags(t *testing.T) {
	h := Header{Control: FINFlag | ACKFlag}
	if !h.Has(FINFlag) || !h.Has(ACKFlag) || h.Has(SYNFlag) {
		t.Errorf("Has mismatch for %v", h)
	}
	if h.Is(FINFlag) || !h.Is(FINFlag|ACKFlag) {
		t.Errorf("Is mismatch for %v", h)
	}
	testCases := []struct {
		control  uint16
		expected string
	}{
		{control: SYNFlag, expected: "S"},
		{control: SYNFlag | ACKFlag, expected: "SA"},
		{control: FINFlag | ACKFlag, expected: "FA"},
		{control: ACKFlag, expected: "A"},
		{control: 0, expected: "."},
	}
	for _, tc := range testCases {
		if got := FlagString(tc.control); got != tc.expected {
			t.Errorf("FlagString(0x%04x) = %q, expected %q", tc.control, got, tc.expected)
		}
	}
}

func TestLengthPrefix(t *testing.T) {
	var b [LengthPrefixLength]byte
	encoded := encodeLengthPrefix(b[:], 20000)
	if diff := cmp.Diff([]byte{0x00, 0x00, 0x4e, 0x20}, encoded); diff != "" {
		t.Errorf("prefix mismatch (-want +got):\n%s", diff)
	}
	if got := decodeLengthPrefix(encoded); got != 20000 {
		t.Errorf("decodeLengthPrefix = %d", got)
	}
}
