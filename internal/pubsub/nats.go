package pubsub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// DefaultStreamName is the JetStream stream holding ranking events
const DefaultStreamName = "RANKING_EVENTS"

// NATSPubSub implements pub/sub using NATS JetStream. Every instance
// subscribes to the subject, so a publish reaches the local subscribers of
// all instances. When server is set it is an in-process NATS server owned
// by this value.
type NATSPubSub struct {
	server  *server.Server
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
	fan     fanout
}

// NewNATSPubSub connects to an external NATS server
func NewNATSPubSub(natsURL, subject string) (*NATSPubSub, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("ranking-ui"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p, err := attach(nc, subject, DefaultStreamName, nats.FileStorage, 7*24*time.Hour)
	if err != nil {
		nc.Close()
		return nil, err
	}
	logger.Info("Connected to NATS", "url", natsURL, "subject", subject)
	return p, nil
}

func attach(nc *nats.Conn, subject, stream string, storage nats.StorageType, maxAge time.Duration) (*NATSPubSub, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subject},
			Storage:  storage,
			MaxAge:   maxAge,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
		logger.Info("JetStream stream created", "stream", stream, "subject", subject)
	}

	p := &NATSPubSub{
		nc:      nc,
		js:      js,
		subject: subject,
		fan:     fanout{buffer: 100},
	}

	p.sub, err = js.Subscribe(subject, p.receive, nats.ManualAck(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return p, nil
}

func (p *NATSPubSub) receive(msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to unmarshal event from JetStream", "error", err)
		msg.Term()
		return
	}
	p.fan.broadcast(event)
	msg.Ack()
}

// Publish publishes an event to JetStream
func (p *NATSPubSub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return
	}
	if _, err := p.js.Publish(p.subject, data); err != nil {
		logger.Error("Failed to publish to NATS", "error", err, "subject", p.subject, "event_type", event.Type)
		return
	}
	logger.Debug("Published event to NATS", "event_type", event.Type, "subject", p.subject)
}

// Subscribe creates a subscription channel for events
func (p *NATSPubSub) Subscribe() chan Event {
	return p.fan.subscribe()
}

// Unsubscribe removes a subscription channel
func (p *NATSPubSub) Unsubscribe(ch chan Event) {
	p.fan.unsubscribe(ch)
}

// SubscriberCount returns the number of active local subscribers
func (p *NATSPubSub) SubscriberCount() int {
	return p.fan.count()
}

// Ping reports whether the connection is up
func (p *NATSPubSub) Ping() error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("nats: not connected")
	}
	return nil
}

// Close drains the subscription, closes the connection and, for an
// embedded server, shuts it down.
func (p *NATSPubSub) Close() {
	if p.sub != nil {
		if err := p.sub.Unsubscribe(); err != nil {
			logger.Warn("Failed to unsubscribe from JetStream", "error", err)
		}
	}
	p.fan.closeAll()
	if p.nc != nil {
		p.nc.Close()
	}
	if p.server != nil {
		p.server.Shutdown()
		p.server.WaitForShutdown()
		logger.Info("Embedded NATS server shut down")
	}
}
