package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Clouded-Sabre/microtcp/capture"
)

var captureFile string

func init() {
	flag.StringVar(&captureFile, "r", "microtcp.pcap", "Capture file written by the client or server")
	flag.Parse()
}

func main() {
	f, err := os.Open(captureFile)
	if err != nil {
		log.Fatalln("Capture file error:", err)
	}
	defer f.Close()

	records, err := capture.ReadAll(f)
	if err != nil {
		log.Println("Capture read error:", err)
	}
	if len(records) == 0 {
		log.Fatalln("No UDP datagrams in", captureFile)
	}
	start := records[0].Timestamp
	for _, r := range records {
		fmt.Printf("%10.6f %s -> %s %s\n", r.Timestamp.Sub(start).Seconds(), r.Src, r.Dst, capture.Describe(r.Payload))
	}
}
