package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Clouded-Sabre/microtcp/lib"
	"github.com/Clouded-Sabre/microtcp/shared"
	"go.uber.org/zap"
)

var (
	configFile string
	serverAddr string
	inFile     string
	chunkSize  int
)

func init() {
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file")
	flag.StringVar(&serverAddr, "server", "", "Server address (overrides the config file)")
	flag.StringVar(&inFile, "file", "-", "File to send, - for stdin")
	flag.IntVar(&chunkSize, "chunk", 64*1024, "Bytes per send call")
	flag.Parse()
}

func main() {
	cfg, err := shared.LoadConfig(configFile)
	if err != nil {
		log.Fatalln("Configuration file error:", err)
	}
	if serverAddr != "" {
		cfg.Server = serverAddr
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalln("Logger error:", err)
	}
	defer logger.Sync()

	raddr, err := net.ResolveUDPAddr("udp", cfg.Server)
	if err != nil {
		logger.Fatal("invalid server address", zap.String("server", cfg.Server), zap.Error(err))
	}

	pc, cleanup, err := shared.OpenEndpoint(cfg, cfg.Client, logger)
	if err != nil {
		logger.Fatal("cannot open endpoint", zap.Error(err))
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := lib.Dial(ctx, pc, raddr, cfg.ConnectionConfig(logger), cfg.RedialConfig())
	if err != nil {
		logger.Fatal("cannot connect", zap.Stringer("server", raddr), zap.Error(err))
	}
	logger.Info("connected", zap.Stringer("server", raddr))

	in := os.Stdin
	if inFile != "-" {
		in, err = os.Open(inFile)
		if err != nil {
			logger.Fatal("cannot open input file", zap.Error(err))
		}
		defer in.Close()
	}

	buffer := make([]byte, chunkSize)
	var total int64
	for ctx.Err() == nil {
		n, rerr := io.ReadFull(in, buffer)
		if n > 0 {
			sent, err := conn.Send(buffer[:n])
			total += int64(sent)
			if err != nil {
				logger.Fatal("send failed", zap.Int64("bytes", total), zap.Error(err))
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			logger.Fatal("read failed", zap.Error(rerr))
		}
	}

	if err := conn.Shutdown(); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("transfer complete", zap.Int64("bytes", total), zap.Any("stats", conn.Stats()))
}
