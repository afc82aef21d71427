package pubsub

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// EmbeddedNATSOptions configures the in-process NATS server used in development
type EmbeddedNATSOptions struct {
	Port       int    // 0 or -1 picks a free port
	Subject    string // subject events are published on
	StreamName string // JetStream stream name
	StoreDir   string // JetStream storage directory; empty keeps the stream in memory
}

// DefaultEmbeddedNATSOptions returns the development defaults
func DefaultEmbeddedNATSOptions() EmbeddedNATSOptions {
	return EmbeddedNATSOptions{
		Port:       -1,
		Subject:    "ranking.events",
		StreamName: DefaultStreamName,
	}
}

// NewEmbeddedNATSPubSub starts a NATS server with JetStream in-process and
// connects a bus to it.
func NewEmbeddedNATSPubSub(opts EmbeddedNATSOptions) (*NATSPubSub, error) {
	port := opts.Port
	if port == 0 {
		port = -1
	}
	if opts.Subject == "" {
		opts.Subject = "ranking.events"
	}
	if opts.StreamName == "" {
		opts.StreamName = DefaultStreamName
	}

	serverOpts := &server.Options{
		Host:      "127.0.0.1",
		Port:      port,
		JetStream: true,
		NoSigs:    true,
		StoreDir:  opts.StoreDir,
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	ns.SetLogger(natsLogger{}, false, false)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
	}
	logger.Info("Embedded NATS server started", "url", ns.ClientURL())

	nc, err := nats.Connect(ns.ClientURL(), nats.Name("ranking-ui-embedded"))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	storage := nats.MemoryStorage
	if opts.StoreDir != "" {
		storage = nats.FileStorage
	}
	p, err := attach(nc, opts.Subject, opts.StreamName, storage, time.Hour)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, err
	}
	p.server = ns
	return p, nil
}

// ServerURL returns the client URL of the embedded server, or "" for an
// external connection.
func (p *NATSPubSub) ServerURL() string {
	if p.server == nil {
		return ""
	}
	return p.server.ClientURL()
}

// natsLogger adapts our logger to the NATS server logger interface
type natsLogger struct{}

func (natsLogger) Noticef(format string, v ...interface{}) {
	logger.Info(fmt.Sprintf("[NATS] "+format, v...))
}

func (natsLogger) Warnf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf("[NATS] "+format, v...))
}

func (natsLogger) Fatalf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (natsLogger) Errorf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (natsLogger) Debugf(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (natsLogger) Tracef(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf("[NATS TRACE] "+format, v...))
}
