package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-data-distribution/internal/common"
	"github.com/i474232898/weather-data-distribution/internal/protocol"
	"github.com/i474232898/weather-data-distribution/internal/transport"
)

const dialTimeout = 10 * time.Second

// Client fetches the most recent observation for a station from an
// aggregation server.
type Client struct {
	id string

	// dial is swappable in tests.
	dial func(addr string) (transport.ClientConn, error)
}

// New creates a query client. An empty id gets a generated UUID.
func New(id string) *Client {
	if id == "" {
		id = uuid.NewString()
	}
	return &Client{
		id: id,
		dial: func(addr string) (transport.ClientConn, error) {
			return transport.Dial(addr, dialTimeout)
		},
	}
}

// Fetch performs one handshake + GET round trip. An empty stationID asks the
// server for its most recently updated station.
func (c *Client) Fetch(addr, stationID string) (map[string]interface{}, error) {
	conn, err := c.dial(addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	handshake, err := conn.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	lamportTime, err := strconv.ParseInt(handshake, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad handshake %q: %w", handshake, err)
	}

	if err := conn.WriteLine(protocol.BuildGet(c.id, lamportTime, stationID)); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	response, err := conn.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// A successful GET carries no status line, only the JSON body; errors
	// come back as "<code> <reason>" lines.
	if common.HasAnyPrefix(response, "400", "404", "500") {
		return nil, fmt.Errorf("server error: %s", response)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(response), &fields); err != nil {
		return nil, fmt.Errorf("decode observation: %w", err)
	}
	return fields, nil
}
