// Package mqtt publishes notification events to per-user broker topics for
// clients that do not hold a notification socket.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrTimeout = errors.New("mqtt: timed out")

type Config struct {
	Host        string
	Port        int
	KeepAlive   time.Duration
	TopicPrefix string
	Timeout     time.Duration
	QoS         byte
	Username    string
	Password    string
}

func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

type message struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// Publisher opens a fresh broker connection per call and tears it down
// afterwards, so unrelated notifications never share a session.
type Publisher struct {
	cfg       Config
	newClient func(*paho.ClientOptions) paho.Client
}

var _ core.Publisher = (*Publisher)(nil)

func NewPublisher(cfg Config) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	return &Publisher{cfg: cfg, newClient: paho.NewClient}
}

func (p *Publisher) Topic(username string) string {
	return p.cfg.TopicPrefix + username + "/notifications"
}

// Publish reports whether the broker confirmed the message. Failures are
// logged here and never surface as errors.
func (p *Publisher) Publish(ctx context.Context, username string, eventType domain.EventType, payload json.RawMessage) bool {
	topic := p.Topic(username)
	logger := log.With().Str("module", "mqtt").Str("topic", topic).Str("type", string(eventType)).Logger()

	if err := p.publish(ctx, topic, message{Type: eventType, Payload: payload}); err != nil {
		logger.Error().Err(err).Msg("publish failed")
		return false
	}
	logger.Info().Msg("notification published")
	return true
}

func (p *Publisher) publish(ctx context.Context, topic string, msg message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	timeout := p.timeout(ctx)

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.BrokerURL()).
		SetClientID("chess-notify-" + uuid.NewString()).
		SetKeepAlive(p.cfg.KeepAlive).
		SetConnectTimeout(timeout).
		SetCleanSession(true).
		SetAutoReconnect(false)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	client := p.newClient(opts)
	if err := wait(client.Connect(), timeout); err != nil {
		return fmt.Errorf("connect %s: %w", p.cfg.BrokerURL(), err)
	}
	defer client.Disconnect(250)

	if err := wait(client.Publish(topic, p.cfg.QoS, false, body), timeout); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// timeout is the configured one, shortened by the caller's deadline.
func (p *Publisher) timeout(ctx context.Context) time.Duration {
	t := p.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < t {
			t = left
		}
	}
	if t <= 0 {
		t = time.Millisecond
	}
	return t
}

func wait(t paho.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return t.Error()
}
