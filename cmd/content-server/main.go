package main

import (
	"context"
	"log"
	"os"

	"github.com/i474232898/weather-data-distribution/internal/obsfile"
	"github.com/i474232898/weather-data-distribution/internal/producer"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("usage: content-server <host>:<port> <observation file> [producer id]")
	}

	addr := os.Args[1]
	filePath := os.Args[2]
	producerID := ""
	if len(os.Args) > 3 {
		producerID = os.Args[3]
	}

	fields, err := obsfile.ParseFile(filePath)
	if err != nil {
		log.Fatalf("unable to load weather data from %s: %v", filePath, err)
	}

	cs := producer.New(producerID)
	if err := cs.Upload(context.Background(), addr, fields); err != nil {
		log.Fatalf("failed to send weather data: %v", err)
	}

	log.Printf("INFO: weather data sent to %s as producer %s", addr, cs.ID())
}
