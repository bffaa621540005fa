package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"sleepalarm/internal/config"
	"sleepalarm/internal/model"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each reminder as a retained message under
// <topic>/reminders/<id> and each firing under <topic>/fired.
type MQTT struct {
	client Publisher
	topic  string
	qos    byte
	logger *zap.Logger

	mu      sync.Mutex
	pending []string
}

type reminderMessage struct {
	ID      string `json:"id"`
	AlarmID int    `json:"alarm_id"`
	Role    string `json:"role"`
	Time    string `json:"time"`
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Second  int    `json:"second"`
	Sound   string `json:"sound"`
}

type firingMessage struct {
	AlarmID int       `json:"alarm_id"`
	Role    string    `json:"role"`
	Time    string    `json:"time"`
	Sound   string    `json:"sound"`
	At      time.Time `json:"at"`
	Missed  bool      `json:"missed"`
}

// NewMQTT connects to cfg.Broker.
func NewMQTT(cfg config.MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("notify: connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return NewMQTTWithPublisher(client, cfg.Topic, cfg.QoS, logger), nil
}

// NewMQTTWithPublisher wraps an existing client.
func NewMQTTWithPublisher(p Publisher, topic string, qos byte, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTT{client: p, topic: topic, qos: qos, logger: logger}
}

func (m *MQTT) reminderTopic(id string) string {
	return m.topic + "/reminders/" + id
}

func (m *MQTT) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	token := m.client.Publish(topic, m.qos, retained, payload)
	timeout := publishTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("notify: publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Schedule(ctx context.Context, r Reminder) error {
	k := model.KeyOf(r.Entry.Time)
	payload, err := json.Marshal(reminderMessage{
		ID:      r.ID,
		AlarmID: r.Entry.ID,
		Role:    string(r.Entry.Role),
		Time:    r.Entry.Time.Format(),
		Hour:    k.Hour,
		Minute:  k.Minute,
		Second:  k.Second,
		Sound:   r.Sound,
	})
	if err != nil {
		return err
	}
	if err := m.publish(ctx, m.reminderTopic(r.ID), true, payload); err != nil {
		return err
	}

	m.mu.Lock()
	m.pending = append(m.pending, r.ID)
	m.mu.Unlock()
	m.logger.Debug("reminder published", zap.String("id", r.ID), zap.Int("alarm_id", r.Entry.ID))
	return nil
}

// CancelAll clears every retained reminder with an empty payload.
func (m *MQTT) CancelAll(ctx context.Context) error {
	m.mu.Lock()
	ids := m.pending
	m.pending = nil
	m.mu.Unlock()

	for i, id := range ids {
		if err := m.publish(ctx, m.reminderTopic(id), true, []byte{}); err != nil {
			// keep what we could not clear so a later cancel retries it
			m.mu.Lock()
			m.pending = append(ids[i:len(ids):len(ids)], m.pending...)
			m.mu.Unlock()
			return err
		}
	}
	return nil
}

func (m *MQTT) Pending(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.pending...), nil
}

func (m *MQTT) Announce(ctx context.Context, f Firing) error {
	payload, err := json.Marshal(firingMessage{
		AlarmID: f.Entry.ID,
		Role:    string(f.Entry.Role),
		Time:    f.Entry.Time.Format(),
		Sound:   f.Sound,
		At:      f.At,
		Missed:  f.Missed,
	})
	if err != nil {
		return err
	}
	return m.publish(ctx, m.topic+"/fired", false, payload)
}

// Close disconnects when the publisher is a live client.
func (m *MQTT) Close() {
	if c, ok := m.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
}
