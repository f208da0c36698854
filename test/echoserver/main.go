package main

import (
	"errors"
	"flag"
	"io"
	"log"

	"github.com/Clouded-Sabre/microtcp/lib"
	"github.com/Clouded-Sabre/microtcp/shared"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8901", "Address to listen on")
	configFile := flag.String("config", "config.yaml", "Configuration file")
	flag.Parse()

	cfg, err := shared.LoadConfig(*configFile)
	if err != nil {
		log.Fatalln("Configuration file error:", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalln("Logger error:", err)
	}
	defer logger.Sync()

	pc, cleanup, err := shared.OpenEndpoint(cfg, *addr, logger)
	if err != nil {
		log.Fatalln("Listen error:", err)
	}
	defer cleanup()

	log.Printf("Echo server listening on %s\n", pc.LocalAddr())

	// one microtcp connection per endpoint: serve clients one after another
	for {
		conn, err := lib.NewListener(pc, cfg.ConnectionConfig(logger))
		if err != nil {
			log.Fatalln("Listen error:", err)
		}
		if err := conn.Accept(); err != nil {
			logger.Warn("accept failed", zap.Error(err))
			continue
		}
		logger.Info("new connection", zap.Stringer("peer", conn.RemoteAddr()))
		handleConn(conn, logger)
	}
}

func handleConn(c *lib.Connection, logger *zap.Logger) {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.Recv(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("connection closed by client", zap.Any("stats", c.Stats()))
				return
			}
			logger.Error("read failed", zap.Error(err))
			return
		}
		logger.Debug("echo", zap.ByteString("message", buf[:n]))
		if _, err = c.Send(buf[:n]); err != nil {
			logger.Error("write failed", zap.Error(err))
			return
		}
	}
}
