package capture

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Clouded-Sabre/microtcp/lib"
	"github.com/google/go-cmp/cmp"
)

func sealedHeader(h lib.Header) []byte {
	b := make([]byte, lib.HeaderLength)
	h.Marshal(b)
	lib.Seal(b)
	return b
}

func TestCaptureRoundTrip(t *testing.T) {
	a, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer a.Close()
	b, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer b.Close()

	var pcap bytes.Buffer
	conn, err := NewConn(a, &pcap, nil)
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}

	syn := sealedHeader(lib.Header{SeqNumber: 1000, Control: lib.SYNFlag, Window: 8192})
	prefix := []byte{0, 0, 0x0b, 0xb8}
	if _, err := conn.WriteTo(syn, b.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if _, err := conn.WriteTo(prefix, b.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	synAck := sealedHeader(lib.Header{SeqNumber: 5000, AckNumber: 1001, Control: lib.SYNFlag | lib.ACKFlag, Window: 8192})
	if _, err := b.WriteTo(synAck, a.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	if _, _, err := conn.ReadFrom(buf); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	records, err := ReadAll(&pcap)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("read %d records, expected 3", len(records))
	}

	local, remote := a.LocalAddr().String(), b.LocalAddr().String()
	type summary struct {
		Src, Dst string
		Payload  []byte
	}
	var got []summary
	for _, r := range records {
		got = append(got, summary{Src: r.Src, Dst: r.Dst, Payload: r.Payload})
	}
	expected := []summary{
		{Src: local, Dst: remote, Payload: syn},
		{Src: local, Dst: remote, Payload: prefix},
		{Src: remote, Dst: local, Payload: synAck},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribe(t *testing.T) {
	ack := sealedHeader(lib.Header{SeqNumber: 7, AckNumber: 9, Control: lib.ACKFlag, Window: 100})
	corrupt := append([]byte(nil), ack...)
	corrupt[0] ^= 0x80

	testCases := []struct {
		name     string
		payload  []byte
		contains string
		bad      bool
	}{
		{name: "prefix", payload: []byte{0, 0, 0x4e, 0x20}, contains: "length-prefix 20000"},
		{name: "short", payload: []byte{1, 2, 3}, contains: "malformed 3 bytes"},
		{name: "ack", payload: ack, contains: "seq: 7 ack: 9 flags: A win: 100 len: 0"},
		{name: "corrupt", payload: corrupt, contains: "[bad checksum]", bad: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Describe(tc.payload)
			if !strings.Contains(got, tc.contains) {
				t.Errorf("Describe = %q, expected it to contain %q", got, tc.contains)
			}
			if !tc.bad && strings.Contains(got, "bad checksum") {
				t.Errorf("valid segment reported as corrupt: %q", got)
			}
		})
	}
}

func TestDecodeDataSegment(t *testing.T) {
	payload := []byte("data")
	seg := make([]byte, lib.HeaderLength+len(payload))
	h := lib.Header{SeqNumber: 1, AckNumber: 2, Control: lib.ACKFlag, DataLen: uint32(len(payload))}
	h.Marshal(seg)
	copy(seg[lib.HeaderLength:], payload)
	lib.Seal(seg)

	var m MicroTCP
	if err := m.DecodeFromBytes(seg, nil); err != nil {
		t.Fatalf("DecodeFromBytes: %v", err)
	}
	if !m.ChecksumValid || m.DataLen != 4 || !bytes.Equal(m.Payload, payload) {
		t.Errorf("decoded %v valid=%t payload=%q", m.Header, m.ChecksumValid, m.Payload)
	}
	if !lib.Verify(seg) {
		t.Errorf("decoding modified the segment")
	}
}
