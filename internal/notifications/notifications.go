package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

// Client posts push notifications to an ntfy server.
type Client struct {
	http   *http.Client
	server string
	topic  string
}

// New returns nil when topic is empty; a nil *Client ignores every call.
func New(server, topic string) *Client {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - buzzer notifications disabled")
		return nil
	}

	log.Info().
		Str("server", server).
		Str("topic", topic).
		Msg("Ntfy notifications initialized")

	return &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		server: strings.TrimRight(server, "/"),
		topic:  topic,
	}
}

// Send sends a notification to the configured topic.
func (c *Client) Send(title, message string) error {
	if c == nil {
		return fmt.Errorf("notifications not initialized")
	}

	payload := map[string]interface{}{
		"topic":   c.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", c.server+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// BuzzerObserver returns an actuator observer that pushes a notification whenever the
// peer sounds the buzzer. Delivery happens off the receive goroutine.
func (c *Client) BuzzerObserver() func(model.ActuatorEvent) {
	return func(ev model.ActuatorEvent) {
		if c == nil || !ev.Buzz {
			return
		}
		go func() {
			msg := fmt.Sprintf("Buzzer sounded at %s", ev.At.Format(time.Kitchen))
			if err := c.Send("Obnoxious Buzzer", msg); err != nil {
				log.Warn().Err(err).Msg("Failed to send buzzer notification")
			}
		}()
	}
}
