package emitter

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/thatsimonsguy/physense-bridge/internal/codec"
	"github.com/thatsimonsguy/physense-bridge/internal/model"
	"github.com/thatsimonsguy/physense-bridge/internal/state"
)

var (
	ErrSendFailed    = errors.New("send failed")
	ErrNotStarted    = errors.New("bridge not started")
	ErrUnknownButton = errors.New("unknown button")
)

// SendError reports a datagram that could not be handed to the network. It matches
// ErrSendFailed with errors.Is.
type SendError struct {
	Device string
	Value  string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %q: %v", e.Device+" "+e.Value, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool {
	return target == ErrSendFailed
}

// PacketWriter is the subset of net.PacketConn the emitter needs.
type PacketWriter interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// Emitter sends input events to the peer. Sends are fire-and-forget.
type Emitter struct {
	conn   PacketWriter
	remote net.Addr
}

func New(conn PacketWriter, remote net.Addr) *Emitter {
	return &Emitter{conn: conn, remote: remote}
}

func (e *Emitter) Send(device, value string) error {
	payload, err := codec.Encode(device, value)
	if err != nil {
		return err
	}
	if _, err := e.conn.WriteTo(payload, e.remote); err != nil {
		return &SendError{Device: device, Value: value, Err: err}
	}
	return nil
}

// PressButton sends a momentary press for button n. There is no release event.
func (e *Emitter) PressButton(n int) error {
	if n < 1 || n > model.ButtonCount {
		return fmt.Errorf("%w: %d", ErrUnknownButton, n)
	}
	return e.Send(string(model.Button(n)), "1")
}

// SendClimate reports a slider position after checking it against the slider's range.
func (e *Emitter) SendClimate(device model.Device, v float64) error {
	value, err := FormatClimate(device, v)
	if err != nil {
		return err
	}
	return e.Send(string(device), value)
}

// LightToggle decides what a light-sensor press transmits and what the sensor shows
// next: day sends "0" and becomes night, night sends "1" and becomes day.
func LightToggle(current model.Light) (value string, next model.Light) {
	if current == model.Day {
		return "0", model.Night
	}
	return "1", model.Day
}

// FormatClimate renders temperature and humidity as integers and pressure as a decimal.
func FormatClimate(device model.Device, v float64) (string, error) {
	r, ok := model.ClimateRanges[device]
	if !ok {
		return "", fmt.Errorf("%w: %s", state.ErrNotClimateField, device)
	}
	if !r.Contains(v) {
		return "", fmt.Errorf("%w: %s=%g not in [%g, %g]", state.ErrOutOfRange, device, v, r.Min, r.Max)
	}

	if device == model.Pressure {
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return strconv.FormatInt(int64(v), 10), nil
}
