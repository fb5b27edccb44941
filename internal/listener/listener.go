package listener

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/physense-bridge/internal/codec"
	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

type Status int32

const (
	StatusIdle Status = iota
	StatusBound
	StatusReceiving
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBound:
		return "bound"
	case StatusReceiving:
		return "receiving"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

var ErrAlreadyStarted = errors.New("listener already started")

// BindError is returned by Start when the receive endpoint cannot be bound.
type BindError struct {
	Endpoint model.Endpoint
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Endpoint, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Handler receives every datagram the listener reads. Both methods run on the
// listener's goroutine.
type Handler interface {
	HandleCommand(cmd model.Command, from net.Addr)
	HandleMalformed(payload []byte, from net.Addr, err error)
}

type Listener struct {
	endpoint model.Endpoint
	handler  Handler

	mu     sync.Mutex
	conn   *net.UDPConn
	done   chan struct{}
	status atomic.Int32
}

func New(endpoint model.Endpoint, handler Handler) *Listener {
	return &Listener{
		endpoint: endpoint,
		handler:  handler,
	}
}

// Start binds the receive endpoint and launches the receive loop.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if Status(l.status.Load()) != StatusIdle {
		return ErrAlreadyStarted
	}

	addr, err := l.endpoint.UDPAddr()
	if err != nil {
		return &BindError{Endpoint: l.endpoint, Err: err}
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return &BindError{Endpoint: l.endpoint, Err: err}
	}

	l.conn = conn
	l.done = make(chan struct{})
	l.status.Store(int32(StatusBound))

	log.Info().
		Str("address", conn.LocalAddr().String()).
		Msg("Listening for actuator commands")

	go l.run(conn, l.done)
	return nil
}

func (l *Listener) run(conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	l.status.CompareAndSwap(int32(StatusBound), int32(StatusReceiving))

	buf := make([]byte, codec.MaxPayload)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || Status(l.status.Load()) == StatusStopped {
				return
			}
			log.Warn().Err(err).Msg("UDP read failed, continuing")
			continue
		}

		cmd, err := codec.Decode(buf[:n])
		if err != nil {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			l.handler.HandleMalformed(payload, from, err)
			continue
		}
		l.handler.HandleCommand(cmd, from)
	}
}

// Stop closes the socket and waits for the receive loop to exit. Calling Stop on a
// listener that never started, or twice, is a no-op.
func (l *Listener) Stop() error {
	l.mu.Lock()
	st := Status(l.status.Load())
	if st == StatusIdle || st == StatusStopped {
		l.mu.Unlock()
		return nil
	}
	l.status.Store(int32(StatusStopped))
	conn, done := l.conn, l.done
	l.mu.Unlock()

	// handlers may still be running; don't hold the lock while draining
	err := conn.Close()
	<-done

	log.Info().Str("address", l.endpoint.String()).Msg("Listener stopped")
	return err
}

func (l *Listener) Status() Status {
	return Status(l.status.Load())
}

// Conn returns the bound socket, or nil before Start.
func (l *Listener) Conn() *net.UDPConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// LocalAddr is the bound address; useful when the configured port is 0.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}
