package codec

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

// MaxPayload is the largest datagram read from the wire; longer payloads are truncated.
const MaxPayload = 1024

var (
	ErrEncode           = errors.New("invalid command for encoding")
	ErrMalformedMessage = errors.New("malformed message")
)

type DecodeError struct {
	Payload string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed message %q: %s", e.Payload, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedMessage
}

// Encode renders "<device> <value>" as ISO-8859-1 bytes.
func Encode(device, value string) ([]byte, error) {
	if device == "" {
		return nil, fmt.Errorf("%w: empty device", ErrEncode)
	}
	if strings.IndexFunc(device, unicode.IsSpace) >= 0 {
		return nil, fmt.Errorf("%w: device %q contains whitespace", ErrEncode, device)
	}
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("%w: empty value for %s", ErrEncode, device)
	}

	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(device + " " + value))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out, nil
}

// Decode parses a datagram payload into a Command. The payload is normalized first, then
// split on the first whitespace run; tokens past the second are ignored.
func Decode(payload []byte) (model.Command, error) {
	raw, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
	if err != nil {
		return model.Command{}, &DecodeError{Payload: string(payload), Reason: err.Error()}
	}

	fields := strings.Fields(Normalize(string(raw)))
	if len(fields) < 2 {
		return model.Command{}, &DecodeError{Payload: string(raw), Reason: "expected device and value"}
	}
	return model.NewCommand(fields[0], fields[1]), nil
}

// Normalize strips byte-literal wrapping (b'...') and any non-alphanumeric characters
// surrounding the payload.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && s[0] == 'b' && (s[1] == '\'' || s[1] == '"') && s[len(s)-1] == s[1] {
		s = s[2 : len(s)-1]
	}
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
