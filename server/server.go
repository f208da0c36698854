package main

import (
	"errors"
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
	listenAddr string
	outFile    string
	bufferSize int
)

func init() {
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file")
	flag.StringVar(&listenAddr, "addr", "", "Listen address (overrides the config file)")
	flag.StringVar(&outFile, "out", "-", "File to write the received stream to, - for stdout")
	flag.IntVar(&bufferSize, "buffer", 1<<20, "Largest message the server accepts in one piece")
	flag.Parse()
}

func main() {
	cfg, err := shared.LoadConfig(configFile)
	if err != nil {
		log.Fatalln("Configuration file error:", err)
	}
	if listenAddr != "" {
		cfg.Server = listenAddr
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalln("Logger error:", err)
	}
	defer logger.Sync()

	pc, cleanup, err := shared.OpenEndpoint(cfg, cfg.Server, logger)
	if err != nil {
		logger.Fatal("cannot open endpoint", zap.String("addr", cfg.Server), zap.Error(err))
	}
	defer cleanup()

	conn, err := lib.NewListener(pc, cfg.ConnectionConfig(logger))
	if err != nil {
		logger.Fatal("cannot listen", zap.Error(err))
	}
	logger.Info("microtcp server listening", zap.Stringer("addr", pc.LocalAddr()))

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("received signal, shutting down")
		conn.Close()
	}()

	if err := conn.Accept(); err != nil {
		logger.Fatal("accept failed", zap.Error(err))
	}
	logger.Info("client connected", zap.Stringer("peer", conn.RemoteAddr()))

	out := os.Stdout
	if outFile != "-" {
		out, err = os.Create(outFile)
		if err != nil {
			logger.Fatal("cannot create output file", zap.Error(err))
		}
		defer out.Close()
	}

	buffer := make([]byte, bufferSize)
	var total int64
	for {
		n, err := conn.Recv(buffer)
		if n > 0 {
			if _, werr := out.Write(buffer[:n]); werr != nil {
				logger.Fatal("write failed", zap.Error(werr))
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("connection closed by client", zap.Int64("bytes", total))
			} else if errors.Is(err, net.ErrClosed) {
				logger.Info("server closed", zap.Int64("bytes", total))
			} else {
				logger.Error("receive failed", zap.Int64("bytes", total), zap.Error(err))
			}
			break
		}
	}
	logger.Info("connection statistics", zap.Any("stats", conn.Stats()))
}
