package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clouded-Sabre/microtcp/lib"
	"github.com/Clouded-Sabre/microtcp/shared"
)

func main() {
	// Define command-line flags
	serverAddr := flag.String("server", "127.0.0.1:8901", "Echo server address")
	configFile := flag.String("config", "config.yaml", "Configuration file")
	count := flag.Int("count", 10, "Number of echo messages to send")
	packetInterval := flag.Duration("interval", 500*time.Millisecond, "Interval between messages (e.g., 500ms, 1s)")
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

	raddr, err := net.ResolveUDPAddr("udp", *serverAddr)
	if err != nil {
		log.Fatalln("Invalid server address:", err)
	}
	pc, cleanup, err := shared.OpenEndpoint(cfg, cfg.Client, logger)
	if err != nil {
		log.Fatalln("Endpoint error:", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := lib.Dial(ctx, pc, raddr, cfg.ConnectionConfig(logger), cfg.RedialConfig())
	if err != nil {
		fmt.Println("Error connecting:", err)
		return
	}
	fmt.Println("Echo client connected to server!")

	ticker := time.NewTicker(*packetInterval)
	defer ticker.Stop()

	buffer := make([]byte, 64*1024)
	successCount := 0
	failureCount := 0
loop:
	for i := 1; i <= *count; i++ {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
		message := fmt.Sprintf("Echo message %d", i)
		log.Printf("[%d] Sending: %s\n", i, message)
		if _, err := conn.Send([]byte(message)); err != nil {
			log.Printf("[%d] Error writing: %v\n", i, err)
			failureCount++
			continue
		}
		n, err := conn.Recv(buffer)
		if err != nil {
			log.Printf("[%d] Error reading: %v\n", i, err)
			failureCount++
			continue
		}
		if string(buffer[:n]) != message {
			log.Printf("[%d] Mismatch: got %q\n", i, buffer[:n])
			failureCount++
			continue
		}
		log.Printf("[%d] Received: %s\n", i, buffer[:n])
		successCount++
	}

	if err := conn.Shutdown(); err != nil {
		log.Println("Shutdown error:", err)
	}
	fmt.Printf("Echo client done: %d succeeded, %d failed\n", successCount, failureCount)
}
