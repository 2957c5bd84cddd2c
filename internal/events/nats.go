package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes events to a JetStream stream under
// <prefix>.<event type>.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetStream
	prefix string
}

// ConnectNATS dials url and makes sure the stream capturing prefix.> exists.
func ConnectNATS(url, stream, prefix string) (*NATSPublisher, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return nil, errors.New("events: subject prefix required")
	}
	nc, err := nats.Connect(url, nats.Name("clipforge-worker"), nats.MaxReconnects(10))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
		Storage:  nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("nats add stream: %w", err)
	}
	return &NATSPublisher{conn: nc, js: js, prefix: prefix}, nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish implements Publisher. Progress events are not persisted.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if event.Type == TaskProgress {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.js.Publish(p.Subject(event.Type), data, nats.MsgId(event.TaskID+":"+string(event.Type))); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
