package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Clouded-Sabre/microtcp/lib"
	"github.com/Clouded-Sabre/microtcp/transport"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	ServerAddr = "127.0.0.1:7080"
	ClientAddr = "127.0.0.1:0"
)

// Config is the content of config.yaml
type Config struct {
	Debug      bool              `yaml:"debug"`      // development logger with debug level
	Server     string            `yaml:"server"`     // server listen / client dial address
	Client     string            `yaml:"client"`     // client local address
	Capture    string            `yaml:"capture"`    // pcap output path, empty disables capture
	DropRate   float64           `yaml:"drop_rate"`  // simulated datagram loss (0.0-1.0)
	Connection ConnectionSection `yaml:"connection"` // protocol settings
	Transport  TransportSection  `yaml:"transport"`  // UDP socket settings
	Redial     RedialSection     `yaml:"redial"`     // client handshake retry settings
}

type ConnectionSection struct {
	MSS                int  `yaml:"mss"`
	InitWindow         int  `yaml:"init_window"`
	InitCwnd           int  `yaml:"init_cwnd"`
	InitSsthresh       int  `yaml:"init_ssthresh"`
	AckTimeoutUs       int  `yaml:"ack_timeout_us"`
	HandshakeTimeoutMs int  `yaml:"handshake_timeout_ms"`
	ReadTimeoutMs      int  `yaml:"read_timeout_ms"`
	MaxRetries         int  `yaml:"max_retries"`
	RecvBufLen         int  `yaml:"recv_buf_len"`
	PoolSize           int  `yaml:"pool_size"`
	PoolDebug          bool `yaml:"pool_debug"`
}

type TransportSection struct {
	ReuseAddr   bool `yaml:"reuse_addr"`
	TOS         int  `yaml:"tos"`
	TTL         int  `yaml:"ttl"`
	ReadBuffer  int  `yaml:"read_buffer"`
	WriteBuffer int  `yaml:"write_buffer"`
}

type RedialSection struct {
	MaxRetries        int     `yaml:"max_retries"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// DefaultConfig mirrors the library defaults
func DefaultConfig() *Config {
	conn := lib.DefaultConnectionConfig()
	tr := transport.DefaultConfig()
	rd := lib.DefaultRedialConfig()
	return &Config{
		Server: ServerAddr,
		Client: ClientAddr,
		Connection: ConnectionSection{
			MSS:                conn.MSS,
			InitWindow:         conn.InitWindow,
			InitCwnd:           conn.InitCwnd,
			InitSsthresh:       conn.InitSsthresh,
			AckTimeoutUs:       int(conn.AckTimeout / time.Microsecond),
			HandshakeTimeoutMs: int(conn.HandshakeTimeout / time.Millisecond),
			ReadTimeoutMs:      int(conn.ReadTimeout / time.Millisecond),
			MaxRetries:         conn.MaxRetries,
			RecvBufLen:         conn.RecvBufLen,
			PoolSize:           conn.PoolSize,
			PoolDebug:          conn.PoolDebug,
		},
		Transport: TransportSection{
			ReuseAddr:   tr.ReuseAddr,
			TOS:         tr.TOS,
			TTL:         tr.TTL,
			ReadBuffer:  tr.ReadBuffer,
			WriteBuffer: tr.WriteBuffer,
		},
		Redial: RedialSection{
			MaxRetries:        rd.MaxRetries,
			InitialBackoffMs:  int(rd.InitialBackoff / time.Millisecond),
			MaxBackoffMs:      int(rd.MaxBackoff / time.Millisecond),
			BackoffMultiplier: rd.BackoffMultiplier,
		},
	}
}

// ReadConfig loads the YAML file at path on top of DefaultConfig, so keys
// missing from the file keep their default values.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %v", err)
	}
	if cfg.DropRate < 0 || cfg.DropRate > 1 {
		return nil, fmt.Errorf("drop_rate %v out of range (0.0-1.0)", cfg.DropRate)
	}
	if err := cfg.ConnectionConfig(nil).Validate(); err != nil {
		return nil, fmt.Errorf("connection section: %v", err)
	}
	return cfg, nil
}

// ConnectionConfig converts the connection section into library settings.
func (c *Config) ConnectionConfig(logger *zap.Logger) *lib.ConnectionConfig {
	s := c.Connection
	return &lib.ConnectionConfig{
		MSS:              s.MSS,
		InitWindow:       s.InitWindow,
		InitCwnd:         s.InitCwnd,
		InitSsthresh:     s.InitSsthresh,
		AckTimeout:       time.Duration(s.AckTimeoutUs) * time.Microsecond,
		HandshakeTimeout: time.Duration(s.HandshakeTimeoutMs) * time.Millisecond,
		ReadTimeout:      time.Duration(s.ReadTimeoutMs) * time.Millisecond,
		MaxRetries:       s.MaxRetries,
		RecvBufLen:       s.RecvBufLen,
		PoolSize:         s.PoolSize,
		PoolDebug:        s.PoolDebug,
		Logger:           logger,
	}
}

func (c *Config) TransportConfig() *transport.Config {
	s := c.Transport
	return &transport.Config{
		ReuseAddr:   s.ReuseAddr,
		TOS:         s.TOS,
		TTL:         s.TTL,
		ReadBuffer:  s.ReadBuffer,
		WriteBuffer: s.WriteBuffer,
	}
}

func (c *Config) RedialConfig() *lib.RedialConfig {
	s := c.Redial
	return &lib.RedialConfig{
		MaxRetries:        s.MaxRetries,
		InitialBackoff:    time.Duration(s.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:        time.Duration(s.MaxBackoffMs) * time.Millisecond,
		BackoffMultiplier: s.BackoffMultiplier,
	}
}

// NewLogger builds the zap logger the programs share.
func (c *Config) NewLogger() (*zap.Logger, error) {
	if c.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
