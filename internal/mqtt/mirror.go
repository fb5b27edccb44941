package mqtt

import (
	"fmt"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/physense-bridge/internal/config"
	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

// Publisher is the one call the mirror makes against a broker.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte)
}

// Mirror republishes actuator changes under <root>/led/<device> (retained) and
// <root>/buzz.
type Mirror struct {
	root      string
	publisher Publisher
}

func NewMirror(root string, publisher Publisher) *Mirror {
	return &Mirror{root: root, publisher: publisher}
}

// Observer adapts the mirror to the bridge's actuator callback. Publishing through paho
// is asynchronous, so this never blocks the receive loop.
func (m *Mirror) Observer() func(model.ActuatorEvent) {
	return func(ev model.ActuatorEvent) {
		topic, retained, payload := m.message(ev)
		m.publisher.Publish(topic, retained, payload)
	}
}

func (m *Mirror) message(ev model.ActuatorEvent) (topic string, retained bool, payload []byte) {
	if ev.Buzz {
		return fmt.Sprintf("%s/buzz", m.root), false, []byte(ev.At.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s/led/%s", m.root, ev.Device), true, []byte(ev.State)
}

type pahoPublisher struct {
	client mqttlib.Client
}

func (p *pahoPublisher) Publish(topic string, retained bool, payload []byte) {
	p.client.Publish(topic, 0, retained, payload)
}

// Connect dials the configured broker and returns a mirror plus a dispose func.
func Connect(cfg config.MQTT) (*Mirror, func(), error) {
	opts := mqttlib.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.AutoReconnect = true
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetWill(cfg.RootTopic+"/status", "offline", 0, true)
	opts.OnConnect = func(client mqttlib.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
		client.Publish(cfg.RootTopic+"/status", 0, true, "online")
	}
	opts.OnConnectionLost = func(client mqttlib.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	}

	client := mqttlib.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.Broker, token.Error())
	}

	dispose := func() {
		log.Info().Msg("Disconnecting MQTT client")
		client.Publish(cfg.RootTopic+"/status", 0, true, "offline").WaitTimeout(time.Second)
		client.Disconnect(250)
	}
	return NewMirror(cfg.RootTopic, &pahoPublisher{client: client}), dispose, nil
}
