package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-data-distribution/internal/lamport"
	"github.com/i474232898/weather-data-distribution/internal/server"
	"github.com/i474232898/weather-data-distribution/internal/store"
	"github.com/i474232898/weather-data-distribution/internal/transport"
)

func startAggregator(t *testing.T) (*transport.MemListener, *store.MemoryStore) {
	t.Helper()

	ln := transport.NewMemListener()
	st := store.NewMemoryStore(30 * time.Second)
	srv := server.New(ln, lamport.New(), st, 16)

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
	return ln, st
}

func memDial(ln *transport.MemListener) func(string) (transport.ClientConn, error) {
	return func(string) (transport.ClientConn, error) { return ln.Connect() }
}

func TestFetchByStation(t *testing.T) {
	ln, st := startAggregator(t)
	st.Put(store.Observation{
		Fields:     map[string]interface{}{"id": "IDS60901", "air_temp": 13.3},
		Timestamp:  0,
		ProducerID: "S1",
	})

	c := New("C1")
	c.dial = memDial(ln)

	fields, err := c.Fetch("mem", "IDS60901")
	require.NoError(t, err)
	require.Equal(t, "IDS60901", fields["id"])
	require.Equal(t, 13.3, fields["air_temp"])
}

func TestFetchDefaultStation(t *testing.T) {
	ln, st := startAggregator(t)
	st.Put(store.Observation{
		Fields:     map[string]interface{}{"id": "A", "v": float64(1)},
		Timestamp:  0,
		ProducerID: "S1",
	})

	c := New("")
	c.dial = memDial(ln)

	fields, err := c.Fetch("mem", "")
	require.NoError(t, err)
	require.Equal(t, "A", fields["id"])
}

func TestFetchNotFound(t *testing.T) {
	ln, _ := startAggregator(t)

	c := New("C1")
	c.dial = memDial(ln)

	_, err := c.Fetch("mem", "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404 Data Not Found")
}
