package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

var (
	ErrOutOfRange      = errors.New("value out of range")
	ErrNotClimateField = errors.New("not a climate device")
)

type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeBuzz
	OutcomeUnknownValue
	OutcomeUnknownDevice
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeBuzz:
		return "buzz"
	case OutcomeUnknownValue:
		return "unknown_value"
	case OutcomeUnknownDevice:
		return "unknown_device"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Snapshot is a consistent copy of the panel state.
type Snapshot struct {
	LEDs    map[model.Device]model.LEDState `json:"leds"`
	Light   model.Light                     `json:"light"`
	Climate map[model.Device]float64        `json:"climate"`
}

// Store is the shared record of every actuator and sensor value. All access goes
// through one RWMutex.
type Store struct {
	mu      sync.RWMutex
	leds    map[model.Device]model.LEDState
	light   model.Light
	climate map[model.Device]float64
}

func New() *Store {
	s := &Store{
		leds:    make(map[model.Device]model.LEDState, len(model.LEDs)),
		light:   model.Night,
		climate: make(map[model.Device]float64, len(model.ClimateDefaults)),
	}
	for _, d := range model.LEDs {
		s.leds[d] = model.LEDOff
	}
	for d, v := range model.ClimateDefaults {
		s.climate[d] = v
	}
	return s
}

// ApplyActuator applies an inbound command. Only LED on/off changes state; the buzzer is
// reported as OutcomeBuzz and anything else is a no-op.
func (s *Store) ApplyActuator(cmd model.Command) Outcome {
	device := model.Device(cmd.Device())

	if device == model.Buzzer {
		return OutcomeBuzz
	}
	if !model.IsLED(device) {
		return OutcomeUnknownDevice
	}

	value := model.LEDState(cmd.Value())
	if value != model.LEDOn && value != model.LEDOff {
		return OutcomeUnknownValue
	}

	s.mu.Lock()
	s.leds[device] = value
	s.mu.Unlock()
	return OutcomeApplied
}

func (s *Store) LED(device model.Device) (model.LEDState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.leds[device]
	return v, ok
}

func (s *Store) LEDs() map[model.Device]model.LEDState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Device]model.LEDState, len(s.leds))
	for d, v := range s.leds {
		out[d] = v
	}
	return out
}

func (s *Store) Light() model.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.light
}

// UpdateLight replaces the light state with fn(current) while holding the lock, so a
// toggle's read-decide-write is never interleaved with another toggle.
func (s *Store) UpdateLight(fn func(model.Light) model.Light) (prev, next model.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.light
	s.light = fn(prev)
	return prev, s.light
}

func (s *Store) SetClimate(device model.Device, v float64) error {
	r, ok := model.ClimateRanges[device]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotClimateField, device)
	}
	if !r.Contains(v) {
		return fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfRange, device, v, r.Min, r.Max)
	}

	s.mu.Lock()
	s.climate[device] = v
	s.mu.Unlock()
	return nil
}

func (s *Store) Climate(device model.Device) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.climate[device]
	return v, ok
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		LEDs:    make(map[model.Device]model.LEDState, len(s.leds)),
		Light:   s.light,
		Climate: make(map[model.Device]float64, len(s.climate)),
	}
	for d, v := range s.leds {
		snap.LEDs[d] = v
	}
	for d, v := range s.climate {
		snap.Climate[d] = v
	}
	return snap
}
