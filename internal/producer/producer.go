package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-data-distribution/internal/protocol"
	"github.com/i474232898/weather-data-distribution/internal/transport"
)

const dialTimeout = 10 * time.Second

// ContentServer pushes observations to an aggregation server, identifying
// itself with the same producer id on every upload and retry. The id survives
// a restart only when the caller supplies it; a generated one does not.
type ContentServer struct {
	id      string
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker

	// dial is swappable in tests.
	dial func(addr string) (transport.ClientConn, error)
}

// New creates a content server. An empty id gets a generated UUID, matching
// how producers have always identified themselves in this system.
func New(id string) *ContentServer {
	if id == "" {
		id = uuid.NewString()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "aggregation-upload",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &ContentServer{
		id: id,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 15 * time.Second,
			MaxInterval:     60 * time.Second,
		},
		circuit: cb,
		dial: func(addr string) (transport.ClientConn, error) {
			return transport.Dial(addr, dialTimeout)
		},
	}
}

// ID returns the producer id sent with every upload.
func (c *ContentServer) ID() string {
	return c.id
}

// Upload delivers one observation: connect, read the advertised Lamport time,
// send the PUT carrying it, and check for 200 OK. Failed attempts retry with
// exponential backoff behind the circuit breaker.
func (c *ContentServer) Upload(ctx context.Context, addr string, fields map[string]interface{}) error {
	stationID, _ := fields["id"].(string)
	if stationID == "" {
		return fmt.Errorf("observation lacks a station id")
	}

	// The body carries the producer id as well, like every content server
	// before this one did.
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload[protocol.HeaderServerID] = c.id

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}

	attempt := func() error {
		_, err := c.circuit.Execute(func() (interface{}, error) {
			return nil, c.uploadOnce(addr, body)
		})
		return err
	}

	return retryWithBackoff(ctx, c.backoff, attempt)
}

// uploadOnce performs a single handshake + PUT round trip.
func (c *ContentServer) uploadOnce(addr string, body []byte) error {
	conn, err := c.dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	handshake, err := conn.ReadLine()
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	lamportTime, err := strconv.ParseInt(handshake, 10, 64)
	if err != nil {
		return fmt.Errorf("bad handshake %q: %w", handshake, err)
	}

	if err := conn.WriteLine(protocol.BuildPut(c.id, lamportTime, body)); err != nil {
		return fmt.Errorf("send upload: %w", err)
	}

	response, err := conn.ReadLine()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if !strings.Contains(response, protocol.StatusOK) {
		return fmt.Errorf("upload rejected: %s", response)
	}
	return nil
}
