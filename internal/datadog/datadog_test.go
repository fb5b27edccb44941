package datadog

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockStatsClient struct {
	incrs  []string
	gauges map[string]float64
	tags   [][]string
	err    error
}

func (m *MockStatsClient) Incr(name string, tags []string, rate float64) error {
	m.incrs = append(m.incrs, name)
	m.tags = append(m.tags, tags)
	return m.err
}

func (m *MockStatsClient) Gauge(name string, value float64, tags []string, rate float64) error {
	if m.gauges == nil {
		m.gauges = map[string]float64{}
	}
	m.gauges[name] = value
	return m.err
}

func (m *MockStatsClient) Close() error { return nil }

func TestMetrics_Forwards(t *testing.T) {
	client := &MockStatsClient{}
	m := NewWithClient(client)

	m.Incr("datagrams.received")
	m.Incr("datagrams.sent", "device:temp")
	m.Gauge("led.state", 1, "led:rled")

	assert.Equal(t, []string{"datagrams.received", "datagrams.sent"}, client.incrs)
	assert.Equal(t, []string{"device:temp"}, client.tags[1])
	assert.Equal(t, 1.0, client.gauges["led.state"])
}

func TestMetrics_ErrorsAreSwallowed(t *testing.T) {
	m := NewWithClient(&MockStatsClient{err: errors.New("agent down")})
	m.Incr("datagrams.received")
	m.Gauge("led.state", 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Incr("datagrams.received")
	m.Gauge("led.state", 1)
	assert.NoError(t, m.Close())
}

func TestNew_SendsToAgent(t *testing.T) {
	agent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer agent.Close()

	m, err := New(agent.LocalAddr().String(), "physense.", []string{"env:test"})
	require.NoError(t, err)
	m.Incr("buzzer.triggered")
	require.NoError(t, m.Close())

	require.NoError(t, agent.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 8192)
	for {
		n, _, err := agent.ReadFromUDP(buf)
		require.NoError(t, err)

		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if strings.HasPrefix(line, "physense.buzzer.triggered:1|c") {
				assert.Contains(t, line, "env:test")
				return
			}
		}
	}
}
