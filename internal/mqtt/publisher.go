package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/tubedigest/internal/config"
)

// Event types published under the configured topic.
const (
	EventRunStarted     = "run_started"
	EventVideoProcessed = "video_processed"
	EventVideoFailed    = "video_failed"
	EventRunFinished    = "run_finished"
)

// Event is one run event. Fields that do not apply to a type are
// omitted from the payload.
type Event struct {
	Type         string    `json:"type"`
	RunID        string    `json:"run_id"`
	Time         time.Time `json:"time"`
	VideoID      string    `json:"video_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	Status       string    `json:"status,omitempty"`
	Error        string    `json:"error,omitempty"`
	Queued       int       `json:"queued,omitempty"`
	Processed    int       `json:"processed,omitempty"`
	Failed       int       `json:"failed,omitempty"`
	InputTokens  int64     `json:"input_tokens,omitempty"`
	OutputTokens int64     `json:"output_tokens,omitempty"`
}

// conn is the part of autopaho.ConnectionManager the publisher uses.
type conn interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	AwaitConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Publisher sends run events to an MQTT broker. A retained status topic
// reads "online" while a run is connected and "offline" otherwise; the
// broker sets it through the will message when the process dies.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     conn
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// before emitting events.
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, logger: logger.With("component", "mqtt")}
}

// Start opens the broker connection and waits up to connectTimeout for
// it to come up. autopaho keeps retrying in the background after that,
// so a slow broker only loses early events.
func (p *Publisher) Start(ctx context.Context, connectTimeout time.Duration) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	statusTopic := p.statusTopic()
	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   statusTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishStatus(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop marks the status topic offline and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishStatus(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// Emit publishes ev to <topic>/<type>. Failures are logged and never
// interrupt the run.
func (p *Publisher) Emit(ctx context.Context, ev Event) {
	if p.cm == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("mqtt marshal event", "type", ev.Type, "error", err)
		return
	}
	topic := p.eventTopic(ev.Type)
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		p.logger.Warn("mqtt event publish failed", "topic", topic, "error", err)
		return
	}
	p.logger.Debug("mqtt event published", "topic", topic, "video_id", ev.VideoID)
}

func (p *Publisher) statusTopic() string {
	return p.cfg.Topic + "/status"
}

func (p *Publisher) eventTopic(eventType string) string {
	return p.cfg.Topic + "/" + eventType
}

func (p *Publisher) publishStatus(ctx context.Context, cm conn, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.statusTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt status publish failed", "status", status, "error", err)
	}
}
