package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

func TestEncode(t *testing.T) {
	out, err := Encode("temp", "72")
	require.NoError(t, err)
	assert.Equal(t, []byte("temp 72"), out)
}

func TestEncode_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		device string
		value  string
	}{
		{"empty device", "", "on"},
		{"space in device", "r led", "on"},
		{"tab in device", "rled\t", "on"},
		{"not latin-1", "rled", "☀"},
		{"empty value", "buzz", ""},
		{"blank value", "buzz", "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.device, tt.value)
			assert.ErrorIs(t, err, ErrEncode)
		})
	}
}

func TestEncode_SingleBytePerCharacter(t *testing.T) {
	out, err := Encode("temp", "72°")
	require.NoError(t, err)
	assert.Equal(t, []byte{'t', 'e', 'm', 'p', ' ', '7', '2', 0xB0}, out)
}

func TestRoundTrip(t *testing.T) {
	pairs := []struct{ device, value string }{
		{"rled", "on"}, {"rled", "off"},
		{"yled", "on"}, {"yled", "off"},
		{"gled", "on"}, {"gled", "off"},
		{"bled", "on"}, {"bled", "off"},
		{"buzz", "1"},
		{"Button_3", "1"},
		{"light", "0"},
		{"temp", "-50"},
		{"press", "29.5"},
	}

	for _, p := range pairs {
		t.Run(p.device+"_"+p.value, func(t *testing.T) {
			out, err := Encode(p.device, p.value)
			require.NoError(t, err)

			cmd, err := Decode(out)
			require.NoError(t, err)
			assert.Equal(t, model.NewCommand(p.device, p.value), cmd)
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		device  string
		value   string
	}{
		{"plain", "rled on", "rled", "on"},
		{"byte literal", "b'gled off'", "gled", "off"},
		{"double quoted byte literal", `b"bled on"`, "bled", "on"},
		{"stray quotes", "'yled on'", "yled", "on"},
		{"trailing newline", "rled off\n", "rled", "off"},
		{"whitespace run", "rled   \t on", "rled", "on"},
		{"extra tokens ignored", "rled on now", "rled", "on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.device, cmd.Device())
			assert.Equal(t, tt.value, cmd.Value())
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, payload := range []string{"", "rled", "   ", "b''", "'buzz'"} {
		t.Run(payload, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMessage))

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rled on", "rled on"},
		{"b'rled on'", "rled on"},
		{"''rled on''", "rled on"},
		{"  \"temp 72\"  ", "temp 72"},
		{"''", ""},
		{"buzz", "buzz"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}
