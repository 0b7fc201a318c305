package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/tubedigest/internal/config"
)

type fakeConn struct {
	published    []*paho.Publish
	err          error
	disconnected bool
}

func (f *fakeConn) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.published = append(f.published, p)
	return &paho.PublishResponse{}, f.err
}

func (f *fakeConn) AwaitConnection(context.Context) error { return nil }

func (f *fakeConn) Disconnect(context.Context) error {
	f.disconnected = true
	return nil
}

func newTestPublisher(fc *fakeConn) *Publisher {
	p := New(config.MQTTConfig{Broker: "mqtt://localhost:1883", Topic: "tubedigest/events"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.cm = fc
	return p
}

func TestPublisher_Topics(t *testing.T) {
	p := newTestPublisher(&fakeConn{})
	if got := p.statusTopic(); got != "tubedigest/events/status" {
		t.Errorf("statusTopic = %q", got)
	}
	if got := p.eventTopic(EventVideoFailed); got != "tubedigest/events/video_failed" {
		t.Errorf("eventTopic = %q", got)
	}
}

func TestPublisher_Emit(t *testing.T) {
	fc := &fakeConn{}
	p := newTestPublisher(fc)
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	p.Emit(context.Background(), Event{
		Type:    EventVideoProcessed,
		RunID:   "run-1",
		Time:    at,
		VideoID: "abc",
		Status:  "success",
	})

	if len(fc.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.published))
	}
	msg := fc.published[0]
	if msg.Topic != "tubedigest/events/video_processed" || msg.QoS != 1 || msg.Retain {
		t.Errorf("publish = topic %q qos %d retain %v", msg.Topic, msg.QoS, msg.Retain)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got["run_id"] != "run-1" || got["video_id"] != "abc" || got["time"] != "2026-10-15T09:00:00Z" {
		t.Errorf("payload = %v", got)
	}
	if _, ok := got["error"]; ok {
		t.Error("empty fields should be omitted")
	}
}

func TestPublisher_EmitFillsTime(t *testing.T) {
	fc := &fakeConn{}
	p := newTestPublisher(fc)
	p.Emit(context.Background(), Event{Type: EventRunStarted, RunID: "r"})

	var ev Event
	if err := json.Unmarshal(fc.published[0].Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Time.IsZero() {
		t.Error("Time should default to now")
	}
}

func TestPublisher_EmitErrorIsNotFatal(t *testing.T) {
	fc := &fakeConn{err: errors.New("not connected")}
	p := newTestPublisher(fc)
	p.Emit(context.Background(), Event{Type: EventRunFinished})
	if len(fc.published) != 1 {
		t.Errorf("published %d, want 1 attempt", len(fc.published))
	}
}

func TestPublisher_NotStarted(t *testing.T) {
	p := New(config.MQTTConfig{Topic: "t"}, nil)
	p.Emit(context.Background(), Event{Type: EventRunStarted})
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestPublisher_Stop(t *testing.T) {
	fc := &fakeConn{}
	p := newTestPublisher(fc)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !fc.disconnected {
		t.Error("Stop should disconnect")
	}
	if len(fc.published) != 1 {
		t.Fatalf("published %d, want offline status", len(fc.published))
	}
	status := fc.published[0]
	if status.Topic != "tubedigest/events/status" || string(status.Payload) != "offline" || !status.Retain {
		t.Errorf("status publish = %+v", status)
	}
}

func TestMQTTConfig_Configured(t *testing.T) {
	if (config.MQTTConfig{}).Configured() {
		t.Error("empty config should not be configured")
	}
	if !(config.MQTTConfig{Broker: "mqtt://b:1883"}).Configured() {
		t.Error("broker set should be configured")
	}
}
