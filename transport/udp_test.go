package transport

import (
	"net"
	"testing"
)

func TestListenWithOptions(t *testing.T) {
	testCases := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "defaults", cfg: DefaultConfig()},
		{name: "tos and ttl", cfg: &Config{TOS: 0x10, TTL: 32}},
		{name: "buffers", cfg: &Config{ReadBuffer: 1 << 16, WriteBuffer: 1 << 16}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pc, err := Listen("udp4", "127.0.0.1:0", tc.cfg)
			if err != nil {
				t.Fatalf("Listen: %v", err)
			}
			defer pc.Close()
			if addr, ok := pc.LocalAddr().(*net.UDPAddr); !ok || addr.Port == 0 {
				t.Errorf("unexpected local address %v", pc.LocalAddr())
			}
		})
	}
}

func TestListenReuseAddr(t *testing.T) {
	first, err := Listen("udp4", "127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := first.LocalAddr().String()
	first.Close()

	// the port can be bound again right away
	second, err := Listen("udp4", addr, nil)
	if err != nil {
		t.Fatalf("rebinding %s: %v", addr, err)
	}
	second.Close()
}

func TestListenBadAddress(t *testing.T) {
	if _, err := Listen("udp4", "not-an-address", nil); err == nil {
		t.Errorf("expected an error")
	}
}
