package shared

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Clouded-Sabre/microtcp/capture"
	"github.com/Clouded-Sabre/microtcp/config"
	"github.com/Clouded-Sabre/microtcp/transport"
	"go.uber.org/zap"
)

func TestOpenEndpointLayers(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DropRate = 0.5
	cfg.Capture = filepath.Join(t.TempDir(), "trace.pcap")

	pc, cleanup, err := OpenEndpoint(cfg, "127.0.0.1:0", zap.NewNop())
	if err != nil {
		t.Fatalf("OpenEndpoint: %v", err)
	}
	defer cleanup()

	cc, ok := pc.(*capture.Conn)
	if !ok {
		t.Fatalf("outermost layer is %T, expected *capture.Conn", pc)
	}
	if _, ok := cc.PacketConn.(*transport.LossyConn); !ok {
		t.Errorf("capture wraps %T, expected *transport.LossyConn", cc.PacketConn)
	}
	if _, err := os.Stat(cfg.Capture); err != nil {
		t.Errorf("capture file: %v", err)
	}
}

func TestOpenEndpointPlain(t *testing.T) {
	pc, cleanup, err := OpenEndpoint(config.DefaultConfig(), "127.0.0.1:0", zap.NewNop())
	if err != nil {
		t.Fatalf("OpenEndpoint: %v", err)
	}
	defer cleanup()
	switch pc.(type) {
	case *capture.Conn, *transport.LossyConn:
		t.Errorf("unexpected wrapper %T", pc)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server != config.ServerAddr {
		t.Errorf("server %q, expected the default", cfg.Server)
	}
}
