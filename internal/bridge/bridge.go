package bridge

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/physense-bridge/internal/codec"
	"github.com/thatsimonsguy/physense-bridge/internal/emitter"
	"github.com/thatsimonsguy/physense-bridge/internal/listener"
	"github.com/thatsimonsguy/physense-bridge/internal/model"
	"github.com/thatsimonsguy/physense-bridge/internal/state"
)

// Metrics receives counters and gauges for datagram traffic.
type Metrics interface {
	Incr(name string, tags ...string)
	Gauge(name string, value float64, tags ...string)
}

// Recorder persists a record of each datagram.
type Recorder interface {
	Record(ev model.Event)
}

// Deps holds optional collaborators; nil fields are skipped.
type Deps struct {
	Metrics  Metrics
	Recorder Recorder
	Now      func() time.Time
}

// Bridge pairs the simulator panel with one peer over UDP. It owns the state store, the
// receive socket and the emitter that sends from that socket.
type Bridge struct {
	local  model.Endpoint
	remote model.Endpoint

	store    *state.Store
	listener *listener.Listener

	mu        sync.RWMutex
	emitter   *emitter.Emitter
	observers []func(model.ActuatorEvent)

	metrics  Metrics
	recorder Recorder
	now      func() time.Time
}

func New(local, remote model.Endpoint, deps Deps) *Bridge {
	b := &Bridge{
		local:    local,
		remote:   remote,
		store:    state.New(),
		metrics:  deps.Metrics,
		recorder: deps.Recorder,
		now:      deps.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.listener = listener.New(local, b)
	return b
}

// Start binds the receive port and begins processing inbound commands. A bind failure is
// returned as *listener.BindError.
func (b *Bridge) Start() error {
	remote, err := b.remote.UDPAddr()
	if err != nil {
		return fmt.Errorf("remote endpoint: %w", err)
	}
	if err := b.listener.Start(); err != nil {
		return err
	}

	b.mu.Lock()
	b.emitter = emitter.New(b.listener.Conn(), remote)
	b.mu.Unlock()

	log.Info().
		Str("receive", b.local.String()).
		Str("send", b.remote.String()).
		Msg("Bridge started")
	return nil
}

// Stop shuts the listener down. No observer runs after Stop returns.
func (b *Bridge) Stop() error {
	err := b.listener.Stop()

	b.mu.Lock()
	b.emitter = nil
	b.mu.Unlock()

	return err
}

// OnActuatorChanged registers fn for every applied LED command and every buzzer trigger.
// Observers run on the receive goroutine and must return quickly.
func (b *Bridge) OnActuatorChanged(fn func(model.ActuatorEvent)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

// Emit sends an arbitrary command to the peer.
func (b *Bridge) Emit(device, value string) error {
	return b.send(device, value, func(e *emitter.Emitter) error {
		return e.Send(device, value)
	})
}

func (b *Bridge) PressButton(n int) error {
	if n < 1 || n > model.ButtonCount {
		return fmt.Errorf("%w: %d", emitter.ErrUnknownButton, n)
	}
	return b.send(string(model.Button(n)), "1", func(e *emitter.Emitter) error {
		return e.PressButton(n)
	})
}

// SetClimate records the slider position and reports it to the peer.
func (b *Bridge) SetClimate(device model.Device, v float64) error {
	value, err := emitter.FormatClimate(device, v)
	if err != nil {
		return err
	}
	if err := b.store.SetClimate(device, v); err != nil {
		return err
	}
	return b.send(string(device), value, func(e *emitter.Emitter) error {
		return e.Send(string(device), value)
	})
}

// ToggleLight flips the light sensor and transmits the value the previous state called
// for. The displayed state flips even if the send fails or the bridge is not started.
func (b *Bridge) ToggleLight() (model.Light, error) {
	var value string
	_, next := b.store.UpdateLight(func(cur model.Light) model.Light {
		var n model.Light
		value, n = emitter.LightToggle(cur)
		return n
	})

	err := b.send(string(model.LightSensor), value, func(e *emitter.Emitter) error {
		return e.Send(string(model.LightSensor), value)
	})
	return next, err
}

func (b *Bridge) LED(device model.Device) (model.LEDState, bool) {
	return b.store.LED(device)
}

func (b *Bridge) Light() model.Light {
	return b.store.Light()
}

func (b *Bridge) Snapshot() state.Snapshot {
	return b.store.Snapshot()
}

// LocalAddr is the bound receive address, or nil before Start.
func (b *Bridge) LocalAddr() net.Addr {
	return b.listener.LocalAddr()
}

func (b *Bridge) Status() listener.Status {
	return b.listener.Status()
}

func (b *Bridge) send(device, value string, fn func(*emitter.Emitter) error) error {
	b.mu.RLock()
	e := b.emitter
	b.mu.RUnlock()
	if e == nil {
		return b.sendFailed(device, value, emitter.ErrNotStarted)
	}

	err := fn(e)
	b.recordSend(device, value, err)
	return err
}

func (b *Bridge) sendFailed(device, value string, cause error) error {
	err := &emitter.SendError{Device: device, Value: value, Err: cause}
	b.recordSend(device, value, err)
	return err
}

func (b *Bridge) recordSend(device, value string, err error) {
	status := model.StatusSent
	if err != nil {
		status = model.StatusSendFailed
		b.incr("datagrams.send_failed", "device:"+device)
		log.Warn().Err(err).Str("device", device).Str("value", value).Msg("Failed to send event to peer")
	} else {
		b.incr("datagrams.sent", "device:"+device)
		log.Debug().Str("device", device).Str("value", value).Msg("Sent event to peer")
	}
	b.record(model.Outbound, device, value, b.remote.String(), status)
}

// HandleCommand applies an inbound command. It runs on the listener goroutine.
func (b *Bridge) HandleCommand(cmd model.Command, from net.Addr) {
	peer := addrString(from)
	b.incr("datagrams.received")

	outcome := b.store.ApplyActuator(cmd)
	device := model.Device(cmd.Device())

	switch outcome {
	case state.OutcomeApplied:
		ledState := model.LEDState(cmd.Value())
		log.Debug().Str("device", cmd.Device()).Str("state", cmd.Value()).Str("peer", peer).Msg("LED updated")
		b.gauge("led.state", ledGauge(ledState), "led:"+cmd.Device())
		b.record(model.Inbound, cmd.Device(), cmd.Value(), peer, model.StatusApplied)
		b.notify(model.ActuatorEvent{Device: device, State: ledState, At: b.now()})
	case state.OutcomeBuzz:
		log.Debug().Str("peer", peer).Msg("Buzzer triggered")
		b.incr("buzzer.triggered")
		b.record(model.Inbound, cmd.Device(), cmd.Value(), peer, model.StatusBuzz)
		b.notify(model.ActuatorEvent{Device: device, Buzz: true, At: b.now()})
	default:
		log.Debug().
			Str("device", cmd.Device()).
			Str("value", cmd.Value()).
			Str("reason", outcome.String()).
			Str("peer", peer).
			Msg("Ignoring actuator command")
		b.incr("actuator.ignored", "reason:"+outcome.String())
		b.record(model.Inbound, cmd.Device(), cmd.Value(), peer, model.StatusIgnored)
	}
}

// HandleMalformed skips a datagram that could not be decoded. A bare "buzz" still
// sounds the buzzer since the buzzer ignores its value.
func (b *Bridge) HandleMalformed(payload []byte, from net.Addr, err error) {
	if model.Device(codec.Normalize(string(payload))) == model.Buzzer {
		b.HandleCommand(model.NewCommand(string(model.Buzzer), ""), from)
		return
	}

	peer := addrString(from)
	log.Debug().Err(err).Str("peer", peer).Msg("Skipping malformed datagram")
	b.incr("datagrams.malformed")
	b.record(model.Inbound, "", string(payload), peer, model.StatusMalformed)
}

func (b *Bridge) notify(ev model.ActuatorEvent) {
	b.mu.RLock()
	observers := make([]func(model.ActuatorEvent), len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}

func (b *Bridge) record(dir model.Direction, device, value, peer string, status model.EventStatus) {
	if b.recorder == nil {
		return
	}
	b.recorder.Record(model.Event{
		Direction: dir,
		Device:    device,
		Value:     value,
		Peer:      peer,
		Status:    status,
		CreatedAt: b.now(),
	})
}

func (b *Bridge) incr(name string, tags ...string) {
	if b.metrics != nil {
		b.metrics.Incr(name, tags...)
	}
}

func (b *Bridge) gauge(name string, value float64, tags ...string) {
	if b.metrics != nil {
		b.metrics.Gauge(name, value, tags...)
	}
}

func ledGauge(s model.LEDState) float64 {
	if s == model.LEDOn {
		return 1
	}
	return 0
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
