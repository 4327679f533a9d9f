package main

import (
	"fmt"
	"log"
	"os"

	"github.com/i474232898/weather-data-distribution/internal/obsfile"
	"github.com/i474232898/weather-data-distribution/internal/query"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: get-client <host>:<port> [station id]")
	}

	addr := os.Args[1]
	stationID := ""
	if len(os.Args) > 2 {
		stationID = os.Args[2]
	}

	client := query.New("")
	fields, err := client.Fetch(addr, stationID)
	if err != nil {
		log.Fatalf("failed to fetch weather data: %v", err)
	}

	fmt.Print(obsfile.Render(fields))
}
