package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/i474232898/weather-data-distribution/internal/lamport"
	"github.com/i474232898/weather-data-distribution/internal/protocol"
	"github.com/i474232898/weather-data-distribution/internal/store"
	"github.com/i474232898/weather-data-distribution/internal/transport"
)

// queuePollTimeout bounds one wait on the hand-off queue so the worker can
// observe cancellation even when no connections arrive.
const queuePollTimeout = 2 * time.Second

// Server is the aggregation node: an acceptor feeding a bounded FIFO queue
// and a single request worker draining it. The single worker linearizes PUT
// and GET handling, which is what the store's invariants rely on.
type Server struct {
	listener transport.Listener
	clock    *lamport.Clock
	store    *store.MemoryStore
	queue    chan transport.Conn
}

// New wires a server over an already-bound listener.
func New(listener transport.Listener, clock *lamport.Clock, st *store.MemoryStore, queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Server{
		listener: listener,
		clock:    clock,
		store:    st,
		queue:    make(chan transport.Conn, queueSize),
	}
}

// Run accepts and serves until the context is cancelled. It closes the
// listener on the way out; in-flight connections are allowed to fail.
func (s *Server) Run(ctx context.Context) {
	go s.acceptLoop(ctx)
	s.workLoop(ctx)
	if err := s.listener.Close(); err != nil {
		log.Printf("ERROR: closing listener: %v", err)
	}
}

// acceptLoop accepts connections, writes the Lamport handshake and hands the
// connection to the worker. Accept timeouts just loop so cancellation is
// noticed within one poll interval.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.listener.Accept()
		if errors.Is(err, transport.ErrAcceptTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ERROR: accept: %v", err)
			continue
		}

		// The handshake advertises the current clock without ticking it; the
		// tick happens when the request is observed.
		if err := conn.WriteLine(strconv.FormatInt(s.clock.Current(), 10)); err != nil {
			log.Printf("ERROR: handshake write: %v", err)
			conn.Close()
			continue
		}

		select {
		case s.queue <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// workLoop serially processes queued connections. A failure on one connection
// is logged and never takes the worker down.
func (s *Server) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-s.queue:
			s.handle(conn)
		case <-time.After(queuePollTimeout):
		}
	}
}

func (s *Server) handle(conn transport.Conn) {
	defer conn.Close()

	raw, err := conn.ReadRequest()
	if err != nil {
		log.Printf("ERROR: reading request: %v", err)
		return
	}

	req, err := protocol.Parse(raw)
	var response string
	switch {
	case err != nil:
		response = protocol.StatusBadRequest
	case req.Method == protocol.MethodPut:
		response = s.handlePut(req)
	case req.Method == protocol.MethodGet:
		response = s.handleGet(req)
	default:
		response = protocol.StatusBadRequest
	}

	if err := conn.WriteLine(response); err != nil {
		log.Printf("ERROR: writing response: %v", err)
	}
}

// handlePut stores an observation. The clock is merged before any
// validation so even rejected requests advance logical time.
func (s *Server) handlePut(req *protocol.Request) string {
	t := req.LamportTime()
	s.clock.Observe(t)

	producerID := req.Header(protocol.HeaderServerID)
	if producerID == "" {
		return protocol.StatusNullServerID
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(req.Body, &fields); err != nil || fields == nil {
		return protocol.StatusJSONError
	}

	stationID, _ := fields["id"].(string)
	if stationID == "" {
		return protocol.StatusNullStationID
	}

	s.store.Put(store.Observation{
		Fields:     fields,
		Timestamp:  t,
		ProducerID: producerID,
	})
	return protocol.StatusOK
}

// handleGet answers with the newest visible observation. Without a StationId
// header the most recent station stands in.
func (s *Server) handleGet(req *protocol.Request) string {
	t := req.LamportTime()
	s.clock.Observe(t)

	stationID := req.Header(protocol.HeaderStationID)
	if stationID == "" {
		recent, ok := s.store.MostRecentStation()
		if !ok {
			return protocol.StatusNotFound
		}
		stationID = recent
	}

	obs, err := s.store.Latest(stationID, t)
	if err != nil {
		return protocol.StatusNotFound
	}

	body, err := json.Marshal(obs.Fields)
	if err != nil {
		log.Printf("ERROR: encoding observation for %s: %v", stationID, err)
		return protocol.StatusNotFound
	}
	return string(body)
}
