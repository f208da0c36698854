// Package transport provides the datagram endpoints microtcp connections run
// over: plain UDP sockets with optional socket options, and a wrapper that
// drops datagrams for loss testing.
package transport

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

type Config struct {
	ReuseAddr   bool // set SO_REUSEADDR before binding
	TOS         int  // IPv4 type-of-service byte, 0 keeps the system default
	TTL         int  // IPv4 unicast TTL, 0 keeps the system default
	ReadBuffer  int  // socket receive buffer in bytes, 0 keeps the system default
	WriteBuffer int  // socket send buffer in bytes, 0 keeps the system default
}

func DefaultConfig() *Config {
	return &Config{
		ReuseAddr: true,
	}
}

// Listen binds a UDP endpoint at address and applies cfg to it.
func Listen(network, address string, cfg *Config) (net.PacketConn, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	lc := net.ListenConfig{}
	if cfg.ReuseAddr {
		lc.Control = reuseAddrControl
	}
	pc, err := lc.ListenPacket(context.Background(), network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, address)
	}
	if err := configure(pc, network, cfg); err != nil {
		pc.Close()
		return nil, err
	}
	return pc, nil
}

func configure(pc net.PacketConn, network string, cfg *Config) error {
	if udp, ok := pc.(*net.UDPConn); ok {
		if cfg.ReadBuffer > 0 {
			if err := udp.SetReadBuffer(cfg.ReadBuffer); err != nil {
				return errors.Wrap(err, "set read buffer")
			}
		}
		if cfg.WriteBuffer > 0 {
			if err := udp.SetWriteBuffer(cfg.WriteBuffer); err != nil {
				return errors.Wrap(err, "set write buffer")
			}
		}
	}
	if network == "udp6" || (cfg.TOS == 0 && cfg.TTL == 0) {
		return nil
	}
	p := ipv4.NewPacketConn(pc)
	if cfg.TOS > 0 {
		if err := p.SetTOS(cfg.TOS); err != nil {
			return errors.Wrap(err, "set TOS")
		}
	}
	if cfg.TTL > 0 {
		if err := p.SetTTL(cfg.TTL); err != nil {
			return errors.Wrap(err, "set TTL")
		}
	}
	return nil
}
