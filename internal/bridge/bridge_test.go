package bridge

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/physense-bridge/internal/codec"
	"github.com/thatsimonsguy/physense-bridge/internal/emitter"
	"github.com/thatsimonsguy/physense-bridge/internal/listener"
	"github.com/thatsimonsguy/physense-bridge/internal/model"
	"github.com/thatsimonsguy/physense-bridge/internal/state"
)

type MockMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	gauges map[string]float64
}

func (m *MockMetrics) Incr(name string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
}

func (m *MockMetrics) Gauge(name string, value float64, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauges == nil {
		m.gauges = map[string]float64{}
	}
	key := name
	if len(tags) > 0 {
		key += "|" + tags[0]
	}
	m.gauges[key] = value
}

func (m *MockMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type MockRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *MockRecorder) Record(ev model.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *MockRecorder) statuses() []model.EventStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventStatus
	for _, ev := range r.events {
		out = append(out, ev.Status)
	}
	return out
}

// peer plays the student program: it owns the send port and writes to the receive port.
type peer struct {
	conn *net.UDPConn
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &peer{conn: conn}
}

func (p *peer) endpoint() model.Endpoint {
	return model.Endpoint{Host: "127.0.0.1", Port: p.conn.LocalAddr().(*net.UDPAddr).Port}
}

func (p *peer) send(t *testing.T, to net.Addr, payload string) {
	t.Helper()
	_, err := p.conn.WriteTo([]byte(payload), to)
	require.NoError(t, err)
}

func (p *peer) receive(t *testing.T) string {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, codec.MaxPayload)
	n, _, err := p.conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

type harness struct {
	bridge   *Bridge
	peer     *peer
	metrics  *MockMetrics
	recorder *MockRecorder
	events   chan model.ActuatorEvent
}

func setupBridge(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		peer:     newPeer(t),
		metrics:  &MockMetrics{},
		recorder: &MockRecorder{},
		events:   make(chan model.ActuatorEvent, 16),
	}
	h.bridge = New(
		model.Endpoint{Host: "127.0.0.1", Port: 0},
		h.peer.endpoint(),
		Deps{Metrics: h.metrics, Recorder: h.recorder},
	)
	h.bridge.OnActuatorChanged(func(ev model.ActuatorEvent) { h.events <- ev })

	require.NoError(t, h.bridge.Start())
	t.Cleanup(func() { h.bridge.Stop() })
	return h
}

func (h *harness) nextEvent(t *testing.T) model.ActuatorEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for actuator event")
		return model.ActuatorEvent{}
	}
}

func TestBridge_LEDOnThenOff(t *testing.T) {
	h := setupBridge(t)

	h.peer.send(t, h.bridge.LocalAddr(), "rled on")
	ev := h.nextEvent(t)
	assert.Equal(t, model.RedLED, ev.Device)
	assert.Equal(t, model.LEDOn, ev.State)
	v, _ := h.bridge.LED(model.RedLED)
	assert.Equal(t, model.LEDOn, v)

	h.peer.send(t, h.bridge.LocalAddr(), "rled off")
	ev = h.nextEvent(t)
	assert.Equal(t, model.LEDOff, ev.State)
	v, _ = h.bridge.LED(model.RedLED)
	assert.Equal(t, model.LEDOff, v)
}

func TestBridge_Buzzer(t *testing.T) {
	h := setupBridge(t)

	before := h.bridge.Snapshot()
	h.peer.send(t, h.bridge.LocalAddr(), "buzz 1")
	ev := h.nextEvent(t)

	assert.True(t, ev.Buzz)
	assert.Equal(t, model.Buzzer, ev.Device)
	assert.Equal(t, before, h.bridge.Snapshot())
	assert.Equal(t, 1, h.metrics.count("buzzer.triggered"))
}

func TestBridge_BareBuzzer(t *testing.T) {
	h := setupBridge(t)
	addr := h.bridge.LocalAddr()

	for _, payload := range []string{"buzz", "buzz ", "b'buzz'"} {
		h.peer.send(t, addr, payload)
		ev := h.nextEvent(t)
		assert.True(t, ev.Buzz, payload)
		assert.Equal(t, model.Buzzer, ev.Device, payload)
	}

	assert.Equal(t, 3, h.metrics.count("buzzer.triggered"))
	assert.Equal(t, 0, h.metrics.count("datagrams.malformed"))
	assert.Equal(t, []model.EventStatus{
		model.StatusBuzz, model.StatusBuzz, model.StatusBuzz,
	}, h.recorder.statuses())
}

func TestBridge_BadDatagramsAreIsolated(t *testing.T) {
	h := setupBridge(t)
	addr := h.bridge.LocalAddr()

	h.peer.send(t, addr, "nonsense")
	h.peer.send(t, addr, "rled maybe")
	h.peer.send(t, addr, "wled on")
	h.peer.send(t, addr, "gled on")

	ev := h.nextEvent(t)
	assert.Equal(t, model.GreenLED, ev.Device)

	snap := h.bridge.Snapshot()
	assert.Equal(t, model.LEDOff, snap.LEDs[model.RedLED])
	assert.Equal(t, model.LEDOn, snap.LEDs[model.GreenLED])

	assert.Equal(t, 1, h.metrics.count("datagrams.malformed"))
	assert.Equal(t, 2, h.metrics.count("actuator.ignored"))
	assert.Equal(t, 3, h.metrics.count("datagrams.received"))
	assert.Equal(t, []model.EventStatus{
		model.StatusMalformed, model.StatusIgnored, model.StatusIgnored, model.StatusApplied,
	}, h.recorder.statuses())
}

func TestBridge_EmitTemperature(t *testing.T) {
	h := setupBridge(t)

	require.NoError(t, h.bridge.Emit("temp", "72"))
	assert.Equal(t, "temp 72", h.peer.receive(t))
	assert.Equal(t, 1, h.metrics.count("datagrams.sent"))
}

func TestBridge_SendsFromReceivePort(t *testing.T) {
	h := setupBridge(t)

	require.NoError(t, h.bridge.PressButton(2))

	require.NoError(t, h.peer.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, codec.MaxPayload)
	n, from, err := h.peer.conn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "Button_2 1", string(buf[:n]))
	assert.Equal(t, h.bridge.LocalAddr().(*net.UDPAddr).Port, from.Port)
}

func TestBridge_PressButton_Unknown(t *testing.T) {
	h := setupBridge(t)
	assert.ErrorIs(t, h.bridge.PressButton(9), emitter.ErrUnknownButton)
	assert.Empty(t, h.recorder.statuses())
}

func TestBridge_ToggleLightTwice(t *testing.T) {
	h := setupBridge(t)
	original := h.bridge.Light()
	require.Equal(t, model.Night, original)

	next, err := h.bridge.ToggleLight()
	require.NoError(t, err)
	assert.Equal(t, model.Day, next)
	first := h.peer.receive(t)

	next, err = h.bridge.ToggleLight()
	require.NoError(t, err)
	assert.Equal(t, original, next)
	second := h.peer.receive(t)

	assert.Equal(t, "light 1", first)
	assert.Equal(t, "light 0", second)
	assert.Equal(t, original, h.bridge.Light())
}

func TestBridge_SetClimate(t *testing.T) {
	h := setupBridge(t)

	require.NoError(t, h.bridge.SetClimate(model.Pressure, 29.5))
	assert.Equal(t, "press 29.5", h.peer.receive(t))
	assert.Equal(t, 29.5, h.bridge.Snapshot().Climate[model.Pressure])

	assert.ErrorIs(t, h.bridge.SetClimate(model.Humidity, 120), state.ErrOutOfRange)
	assert.Equal(t, 100.0, h.bridge.Snapshot().Climate[model.Humidity])
}

func TestBridge_EmitBeforeStart(t *testing.T) {
	rec := &MockRecorder{}
	b := New(model.Endpoint{Host: "127.0.0.1", Port: 0}, model.Endpoint{Host: "127.0.0.1", Port: 6665}, Deps{Recorder: rec})

	err := b.Emit("temp", "72")
	assert.ErrorIs(t, err, emitter.ErrSendFailed)
	assert.ErrorIs(t, err, emitter.ErrNotStarted)

	next, err := b.ToggleLight()
	assert.ErrorIs(t, err, emitter.ErrSendFailed)
	assert.Equal(t, model.Day, next)
	assert.Equal(t, model.Day, b.Light())

	assert.Equal(t, []model.EventStatus{model.StatusSendFailed, model.StatusSendFailed}, rec.statuses())
}

func TestBridge_BindFailure(t *testing.T) {
	h := setupBridge(t)
	port := h.bridge.LocalAddr().(*net.UDPAddr).Port

	other := New(model.Endpoint{Host: "127.0.0.1", Port: port}, h.peer.endpoint(), Deps{})
	err := other.Start()

	var bindErr *listener.BindError
	assert.True(t, errors.As(err, &bindErr))
}

func TestBridge_StopIsDeterministic(t *testing.T) {
	h := setupBridge(t)
	addr := h.bridge.LocalAddr()

	done := make(chan error, 1)
	go func() { done <- h.bridge.Stop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
	assert.Equal(t, listener.StatusStopped, h.bridge.Status())

	before := h.bridge.Snapshot()
	h.peer.send(t, addr, "bled on")
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, before, h.bridge.Snapshot())
	assert.Empty(t, h.events)

	assert.ErrorIs(t, h.bridge.Emit("temp", "72"), emitter.ErrSendFailed)
}
