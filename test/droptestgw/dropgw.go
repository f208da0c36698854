package main

import (
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Clouded-Sabre/microtcp/transport"
	"go.uber.org/zap"
)

var (
	gatewayAddr string
	targetAddr  string
	dropRate    float64
	seed        int64
)

func init() {
	flag.StringVar(&gatewayAddr, "listen", "127.0.0.1:8901", "Gateway address clients connect to")
	flag.StringVar(&targetAddr, "target", "127.0.0.1:7080", "microtcp server address")
	flag.Float64Var(&dropRate, "droprate", 0.1, "Datagram drop rate (0.0-1.0)")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed for drops")
	flag.Parse()
}

// relay forwards datagrams read from src to whatever address dst returns,
// dropping them at the gateway's configured rate.
func relay(src, out net.PacketConn, dst func(from net.Addr) net.Addr, logger *zap.Logger, direction string) error {
	buf := make([]byte, 64*1024)
	for {
		n, from, err := src.ReadFrom(buf)
		if err != nil {
			return err
		}
		to := dst(from)
		if to == nil {
			continue
		}
		if _, err := out.WriteTo(buf[:n], to); err != nil {
			logger.Warn("forward failed", zap.String("direction", direction), zap.Error(err))
		}
	}
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalln("Logger error:", err)
	}
	defer logger.Sync()

	target, err := net.ResolveUDPAddr("udp", targetAddr)
	if err != nil {
		logger.Fatal("invalid target", zap.Error(err))
	}

	frontPC, err := transport.Listen("udp", gatewayAddr, transport.DefaultConfig())
	if err != nil {
		logger.Fatal("cannot listen", zap.Error(err))
	}
	backPC, err := transport.Listen("udp", "127.0.0.1:0", transport.DefaultConfig())
	if err != nil {
		logger.Fatal("cannot open server side socket", zap.Error(err))
	}

	// every datagram crosses the gateway through one inbound read, drop there only
	random := transport.RandomDrop(dropRate, seed)
	drop := func(dir transport.Direction, b []byte) bool {
		return dir == transport.Inbound && random(dir, b)
	}
	front := transport.NewLossyConn(frontPC, drop, logger.Named("client-side"))
	back := transport.NewLossyConn(backPC, drop, logger.Named("server-side"))
	logger.Info("drop gateway started",
		zap.String("listen", gatewayAddr), zap.Stringer("target", target), zap.Float64("droprate", dropRate))

	var mu sync.Mutex
	var client net.Addr

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := relay(front, back, func(from net.Addr) net.Addr {
			mu.Lock()
			defer mu.Unlock()
			if client == nil || client.String() != from.String() {
				logger.Info("client attached", zap.Stringer("client", from))
				client = from
			}
			return target
		}, logger, "client-to-server")
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("client side relay stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		err := relay(back, front, func(from net.Addr) net.Addr {
			mu.Lock()
			defer mu.Unlock()
			return client
		}, logger, "server-to-client")
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("server side relay stopped", zap.Error(err))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan
	logger.Info("shutting down",
		zap.Int("droppedToServer", front.Dropped(transport.Inbound)),
		zap.Int("droppedToClient", back.Dropped(transport.Inbound)))
	front.Close()
	back.Close()
	wg.Wait()
}
