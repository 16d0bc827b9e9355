package source

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	defaults "github.com/xtxerr/gridpower/config"
	"github.com/xtxerr/gridpower/internal/storage/config"
)

const mqttDisconnectQuiesce = 250 // ms

// MQTT subscribes to a topic and ingests each message payload.
type MQTT struct {
	cfg      config.MQTTConfig
	sessions Sessions

	// Buffered payloads between the paho callback and Run
	queue chan []byte

	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewMQTT creates an MQTT source.
func NewMQTT(cfg config.MQTTConfig, sessions Sessions) *MQTT {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.DefaultMQTTConnectTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.DefaultMQTTClientID
	}

	return &MQTT{
		cfg:       cfg,
		sessions:  sessions,
		queue:     make(chan []byte, 64),
		newClient: mqtt.NewClient,
	}
}

// Name implements Source.
func (m *MQTT) Name() string {
	return "mqtt"
}

// Run connects, subscribes and ingests until ctx is canceled. The
// subscription is renewed on every reconnect.
func (m *MQTT) Run(ctx context.Context) error {
	sess, err := m.sessions.NewSession(m.Name())
	if err != nil {
		return fmt.Errorf("mqtt: open session: %w", err)
	}

	client := m.newClient(m.options(ctx))

	token := client.Connect()
	if !token.WaitTimeout(m.cfg.ConnectTimeout) {
		return sess.Fail(ctx, fmt.Errorf("mqtt: connect to %s: timeout after %s", m.cfg.Broker, m.cfg.ConnectTimeout))
	}
	if err := token.Error(); err != nil {
		return sess.Fail(ctx, fmt.Errorf("mqtt: connect to %s: %w", m.cfg.Broker, err))
	}
	defer client.Disconnect(mqttDisconnectQuiesce)

	log.Info("mqtt source started", "broker", m.cfg.Broker, "topic", m.cfg.Topic, "session_id", sess.ID())

	for {
		select {
		case <-ctx.Done():
			st := complete(ctx, sess)
			log.Info("mqtt source stopped", "chunks", st.Chunks, "accepted", st.Accepted)
			return nil
		case payload := <-m.queue:
			deliver(ctx, sess, payload)
		}
	}
}

func (m *MQTT) options(ctx context.Context) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(m.cfg.ConnectTimeout)
	opts.SetCleanSession(true)

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
	}
	if m.cfg.Password != "" {
		opts.SetPassword(m.cfg.Password)
	}

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case m.queue <- msg.Payload():
		case <-ctx.Done():
		}
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		t := c.Subscribe(m.cfg.Topic, m.cfg.QoS, onMessage)
		if t.WaitTimeout(m.cfg.ConnectTimeout) && t.Error() != nil {
			log.Error("mqtt subscribe failed", "topic", m.cfg.Topic, "error", t.Error())
			return
		}
		log.Debug("mqtt subscribed", "topic", m.cfg.Topic, "qos", m.cfg.QoS)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})

	return opts
}
