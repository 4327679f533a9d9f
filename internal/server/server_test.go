package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-data-distribution/internal/lamport"
	"github.com/i474232898/weather-data-distribution/internal/protocol"
	"github.com/i474232898/weather-data-distribution/internal/store"
	"github.com/i474232898/weather-data-distribution/internal/transport"
)

func newTestServer(t *testing.T) (*transport.MemListener, *store.MemoryStore, *lamport.Clock) {
	t.Helper()

	ln := transport.NewMemListener()
	st := store.NewMemoryStore(30 * time.Second)
	clock := lamport.New()
	srv := New(ln, clock, st, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return ln, st, clock
}

// roundTrip opens a connection, reads the handshake, sends one request and
// returns the advertised Lamport time and the response line.
func roundTrip(t *testing.T, ln *transport.MemListener, request string) (int64, string) {
	t.Helper()

	conn, err := ln.Connect()
	require.NoError(t, err)
	defer conn.Close()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	handshake, err := strconv.ParseInt(line, 10, 64)
	require.NoError(t, err)

	require.NoError(t, conn.WriteLine(request))

	response, err := conn.ReadLine()
	require.NoError(t, err)
	return handshake, response
}

func TestBasicPutThenGet(t *testing.T) {
	ln, _, _ := newTestServer(t)

	body := `{"id":"IDS60901","temp":25}`
	handshake, response := roundTrip(t, ln, protocol.BuildPut("S1", 5, []byte(body)))
	require.Equal(t, int64(0), handshake)
	require.Equal(t, protocol.StatusOK, response)

	// The PUT at Lamport 5 advanced the clock to 6, and the handshake
	// advertises it without another tick.
	handshake, response = roundTrip(t, ln, protocol.BuildGet("C1", 10, "IDS60901"))
	require.Equal(t, int64(6), handshake)
	require.JSONEq(t, body, response)
}

func TestPutMissingServerID(t *testing.T) {
	ln, _, _ := newTestServer(t)

	raw := "PUT /uploadData HTTP/1.1\r\n" +
		"LamportClock: 1\r\n" +
		"Content-Length: 12\r\n" +
		"\r\n" +
		`{"id":"X"}  `
	_, response := roundTrip(t, ln, raw)
	require.Equal(t, protocol.StatusNullServerID, response)
}

func TestPutMissingStationID(t *testing.T) {
	ln, _, _ := newTestServer(t)

	_, response := roundTrip(t, ln, protocol.BuildPut("S1", 1, []byte(`{"temp":1}`)))
	require.Equal(t, protocol.StatusNullStationID, response)
}

func TestPutBadJSON(t *testing.T) {
	ln, _, _ := newTestServer(t)

	_, response := roundTrip(t, ln, protocol.BuildPut("S1", 1, []byte(`{nope`)))
	require.Equal(t, protocol.StatusJSONError, response)
}

func TestUnknownMethod(t *testing.T) {
	ln, _, _ := newTestServer(t)

	_, response := roundTrip(t, ln, "DELETE /weather.json HTTP/1.1\r\n\r\n")
	require.Equal(t, protocol.StatusBadRequest, response)
}

func TestGetEmptyServer(t *testing.T) {
	ln, _, _ := newTestServer(t)

	_, response := roundTrip(t, ln, protocol.BuildGet("C1", 5, ""))
	require.Equal(t, protocol.StatusNotFound, response)
}

func TestGetDefaultsToMostRecentStation(t *testing.T) {
	ln, _, _ := newTestServer(t)

	_, response := roundTrip(t, ln, protocol.BuildPut("S1", 1, []byte(`{"id":"A","v":1}`)))
	require.Equal(t, protocol.StatusOK, response)
	_, response = roundTrip(t, ln, protocol.BuildPut("S1", 2, []byte(`{"id":"B","v":2}`)))
	require.Equal(t, protocol.StatusOK, response)

	_, response = roundTrip(t, ln, protocol.BuildGet("C1", 5, ""))
	require.JSONEq(t, `{"id":"B","v":2}`, response)
}

func TestGetHonorsClientClock(t *testing.T) {
	ln, _, _ := newTestServer(t)

	_, response := roundTrip(t, ln, protocol.BuildPut("S1", 4, []byte(`{"id":"A","v":"old"}`)))
	require.Equal(t, protocol.StatusOK, response)
	_, response = roundTrip(t, ln, protocol.BuildPut("S1", 9, []byte(`{"id":"A","v":"new"}`)))
	require.Equal(t, protocol.StatusOK, response)

	// A client at Lamport 5 sees only the observation at 4.
	_, response = roundTrip(t, ln, protocol.BuildGet("C1", 5, "A"))
	require.JSONEq(t, `{"id":"A","v":"old"}`, response)

	_, response = roundTrip(t, ln, protocol.BuildGet("C1", 3, "A"))
	require.Equal(t, protocol.StatusNotFound, response)
}

func TestSilentProducerHiddenUntilNextPut(t *testing.T) {
	ln, st, _ := newTestServer(t)

	now := time.Now()
	st.SetNow(func() time.Time { return now })

	_, response := roundTrip(t, ln, protocol.BuildPut("S1", 1, []byte(`{"id":"A","v":1}`)))
	require.Equal(t, protocol.StatusOK, response)

	st.SetNow(func() time.Time { return now.Add(31 * time.Second) })
	_, response = roundTrip(t, ln, protocol.BuildGet("C1", 5, "A"))
	require.Equal(t, protocol.StatusNotFound, response)

	// The next PUT from the same producer re-arms liveness; the earlier
	// observation is visible again.
	_, response = roundTrip(t, ln, protocol.BuildPut("S1", 2, []byte(`{"id":"B","v":2}`)))
	require.Equal(t, protocol.StatusOK, response)
	_, response = roundTrip(t, ln, protocol.BuildGet("C1", 5, "A"))
	require.JSONEq(t, `{"id":"A","v":1}`, response)
}

func TestRejectedRequestsStillAdvanceClock(t *testing.T) {
	ln, _, clock := newTestServer(t)

	_, response := roundTrip(t, ln, protocol.BuildPut("S1", 40, []byte(`{nope`)))
	require.Equal(t, protocol.StatusJSONError, response)
	require.Equal(t, int64(41), clock.Current())
}

func TestCheckpointRestoreServesSameData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")

	ln1, st1, clock1 := newTestServer(t)
	_, response := roundTrip(t, ln1, protocol.BuildPut("S1", 1, []byte(`{"id":"A","v":1}`)))
	require.Equal(t, protocol.StatusOK, response)
	_, response = roundTrip(t, ln1, protocol.BuildPut("S1", 2, []byte(`{"id":"B","v":2}`)))
	require.Equal(t, protocol.StatusOK, response)

	require.NoError(t, store.SaveCheckpoint(path, st1, clock1))
	snapTime := clock1.Current()

	ln2, st2, clock2 := newTestServer(t)
	require.NoError(t, store.LoadCheckpoint(path, st2, clock2))

	handshake, response := roundTrip(t, ln2, protocol.BuildGet("C1", 5, ""))
	require.GreaterOrEqual(t, handshake, snapTime)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(response), &fields))
	require.Equal(t, "B", fields["id"])
	// The stored body keeps the producer id the checkpoint recorded.
	require.Equal(t, "S1", fields["ServerId"])
}
