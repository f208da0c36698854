package shared

import (
	"net"
	"os"
	"time"

	"github.com/Clouded-Sabre/microtcp/capture"
	"github.com/Clouded-Sabre/microtcp/config"
	"github.com/Clouded-Sabre/microtcp/transport"
	"go.uber.org/zap"
)

// OpenEndpoint binds the UDP endpoint at address and layers loss simulation
// and pcap capture on top of it as the config asks.
// The returned cleanup closes the endpoint and the capture file.
func OpenEndpoint(cfg *config.Config, address string, logger *zap.Logger) (net.PacketConn, func(), error) {
	pc, err := transport.Listen("udp", address, cfg.TransportConfig())
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { pc.Close() }

	if cfg.DropRate > 0 {
		logger.Info("simulating datagram loss", zap.Float64("rate", cfg.DropRate))
		pc = transport.NewLossyConn(pc, transport.RandomDrop(cfg.DropRate, time.Now().UnixNano()), logger)
	}

	if cfg.Capture != "" {
		f, err := os.Create(cfg.Capture)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cc, err := capture.NewConn(pc, f, logger)
		if err != nil {
			f.Close()
			cleanup()
			return nil, nil, err
		}
		logger.Info("capturing traffic", zap.String("file", cfg.Capture))
		pc = cc
		inner := cleanup
		cleanup = func() {
			inner()
			f.Close()
		}
	}
	return pc, cleanup, nil
}

// LoadConfig reads path, falling back to the defaults when the file does not exist.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.ReadConfig(path)
	if os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}
