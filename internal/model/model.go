package model

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

type Device string

const (
	// actuators, driven by the peer
	RedLED    Device = "rled"
	YellowLED Device = "yled"
	GreenLED  Device = "gled"
	BlueLED   Device = "bled"
	Buzzer    Device = "buzz"

	// inputs, reported to the peer
	LightSensor Device = "light"
	Temperature Device = "temp"
	Humidity    Device = "humid"
	Pressure    Device = "press"
)

// LEDs lists the LED devices in panel order.
var LEDs = []Device{RedLED, YellowLED, GreenLED, BlueLED}

const ButtonCount = 4

// Button returns the device token for push button n (1-based).
func Button(n int) Device {
	return Device(fmt.Sprintf("Button_%d", n))
}

func IsLED(d Device) bool {
	switch d {
	case RedLED, YellowLED, GreenLED, BlueLED:
		return true
	default:
		return false
	}
}

type LEDState string

const (
	LEDOn  LEDState = "on"
	LEDOff LEDState = "off"
)

type Light string

const (
	Day   Light = "day"
	Night Light = "night"
)

// Command is one protocol exchange: a device token and its value.
type Command struct {
	device string
	value  string
}

func NewCommand(device, value string) Command {
	return Command{device: device, value: value}
}

func (c Command) Device() string { return c.device }
func (c Command) Value() string  { return c.value }

func (c Command) String() string {
	return c.device + " " + c.value
}

type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) UDPAddr() (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", e.String())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", e, err)
	}
	return addr, nil
}

type Range struct {
	Min float64
	Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ClimateRanges mirrors the bounds of the panel's climate sliders.
var ClimateRanges = map[Device]Range{
	Temperature: {Min: -50, Max: 150},
	Humidity:    {Min: 0, Max: 100},
	Pressure:    {Min: 29, Max: 31},
}

// ClimateDefaults are the sliders' initial positions (each slider starts at its top).
var ClimateDefaults = map[Device]float64{
	Temperature: 150,
	Humidity:    100,
	Pressure:    31,
}

// ActuatorEvent is delivered to observers when an inbound command changes an LED or
// triggers the buzzer.
type ActuatorEvent struct {
	Device Device    `json:"device"`
	State  LEDState  `json:"state,omitempty"`
	Buzz   bool      `json:"buzz,omitempty"`
	At     time.Time `json:"at"`
}

type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

type EventStatus string

const (
	StatusApplied    EventStatus = "applied"
	StatusBuzz       EventStatus = "buzz"
	StatusIgnored    EventStatus = "ignored"
	StatusMalformed  EventStatus = "malformed"
	StatusSent       EventStatus = "sent"
	StatusSendFailed EventStatus = "send_failed"
)

// Event is one journaled datagram.
type Event struct {
	ID        int64       `json:"id"`
	Direction Direction   `json:"direction"`
	Device    string      `json:"device"`
	Value     string      `json:"value"`
	Peer      string      `json:"peer"`
	Status    EventStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}
