package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemListener is the in-memory transport variant tests substitute for the TCP
// listener. Connect hands the caller the client end of a buffered pipe whose
// server end shows up on the next Accept. Unlike net.Pipe, writes never block
// on the peer, so a one-request-per-connection exchange needs no extra
// goroutines.
type MemListener struct {
	pending chan *Socket
	closed  chan struct{}
}

// NewMemListener creates an in-memory listener.
func NewMemListener() *MemListener {
	return &MemListener{
		pending: make(chan *Socket, 16),
		closed:  make(chan struct{}),
	}
}

// Connect opens a new in-memory connection and returns the client end.
func (l *MemListener) Connect() (*Socket, error) {
	toServer := newMemBuffer()
	toClient := newMemBuffer()
	clientEnd := &memConn{in: toClient, out: toServer}
	serverEnd := &memConn{in: toServer, out: toClient}

	select {
	case l.pending <- NewSocket(serverEnd):
		return NewSocket(clientEnd), nil
	case <-l.closed:
		clientEnd.Close()
		serverEnd.Close()
		return nil, errors.New("listener closed")
	}
}

func (l *MemListener) Accept() (Conn, error) {
	select {
	case s := <-l.pending:
		return s, nil
	case <-l.closed:
		return nil, errors.New("listener closed")
	case <-time.After(acceptPollTimeout):
		return nil, ErrAcceptTimeout
	}
}

func (l *MemListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

// memBuffer is one direction of an in-memory connection: an unbounded byte
// queue with blocking reads, close-as-EOF and read deadlines.
type memBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	data     []byte
	closed   bool
	deadline time.Time
	timer    *time.Timer
}

func newMemBuffer() *memBuffer {
	b := &memBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *memBuffer) read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.data) == 0 {
		if b.closed {
			return 0, io.EOF
		}
		if !b.deadline.IsZero() && !time.Now().Before(b.deadline) {
			return 0, os.ErrDeadlineExceeded
		}
		b.cond.Wait()
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *memBuffer) write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	return len(p), nil
}

func (b *memBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

func (b *memBuffer) setReadDeadline(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadline = t
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if !t.IsZero() {
		b.timer = time.AfterFunc(time.Until(t), func() {
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		})
	}
}

// memConn is a net.Conn over a pair of memBuffers.
type memConn struct {
	in  *memBuffer
	out *memBuffer
}

type memAddr struct{}

func (memAddr) Network() string { return "mem" }
func (memAddr) String() string  { return "mem" }

func (c *memConn) Read(p []byte) (int, error)  { return c.in.read(p) }
func (c *memConn) Write(p []byte) (int, error) { return c.out.write(p) }

func (c *memConn) Close() error {
	c.in.close()
	c.out.close()
	return nil
}

func (c *memConn) LocalAddr() net.Addr  { return memAddr{} }
func (c *memConn) RemoteAddr() net.Addr { return memAddr{} }

func (c *memConn) SetDeadline(t time.Time) error {
	c.in.setReadDeadline(t)
	return nil
}

func (c *memConn) SetReadDeadline(t time.Time) error {
	c.in.setReadDeadline(t)
	return nil
}

func (c *memConn) SetWriteDeadline(time.Time) error { return nil }
