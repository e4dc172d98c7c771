// Package nats publishes derived documents for live consumers.
//
// During a live run every upserted document is also published to the subject
// pitwall.<collection>, so downstream consumers (dashboards, bots) get
// updates without polling the document store. Fan-out is fire-and-forget:
// a consumer that misses a message reads the store instead.
package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pitwall/pitwall/internal/collections"
)

// SubjectPrefix is prepended to every collection subject.
const SubjectPrefix = "pitwall"

// Config holds NATS connection configuration.
type Config struct {
	// Server URL (e.g. nats://localhost:4222).
	URL string

	// Client connection name for identification.
	Name string

	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Name:           "pitwall-ingestor",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 10 * time.Second,
	}
}

// Publisher wraps a NATS connection with lifecycle management.
type Publisher struct {
	nc     *nats.Conn
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Connect establishes a connection to NATS.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	defaults := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats_publisher")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Publisher{nc: nc, cfg: cfg, logger: logger}, nil
}

// PublishDocuments publishes each document as JSON on the collection subject.
// Marshal failures skip the single document.
func (p *Publisher) PublishDocuments(collection string, docs []collections.Document) error {
	subject := SubjectPrefix + "." + collection
	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			p.logger.Warn("skipping unmarshalable document", "collection", collection, "id", doc.ID(), "error", err)
			continue
		}
		if err := p.nc.Publish(subject, data); err != nil {
			return fmt.Errorf("publishing to %s: %w", subject, err)
		}
	}
	return nil
}

// Close drains and shuts down the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
