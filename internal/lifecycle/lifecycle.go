// Package lifecycle coordinates redundant ingesting instances.
//
// Multiple instances may ingest the same session at once; idempotent upserts
// make their writes converge, so the coordinator only has to answer two
// questions: which phase a session is in, and which instances are currently
// working on it. Instances announce themselves with TTL heartbeats in redis;
// an instance that dies simply ages out.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Phase is the lifecycle phase of a session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseActive     Phase = "active"
	PhaseCompleted  Phase = "completed"
)

// Config holds coordinator configuration.
type Config struct {
	Addr     string
	Password string
	DB       int

	KeyPrefix string

	// HeartbeatInterval is how often an instance renews its registration;
	// the registration TTL is three intervals.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Addr:              "localhost:6379",
		KeyPrefix:         "pitwall:",
		HeartbeatInterval: 10 * time.Second,
	}
}

// Coordinator is one instance's view of the shared session registry.
type Coordinator struct {
	client     *redis.Client
	cfg        Config
	instanceID string
	logger     *slog.Logger
}

// NewCoordinator connects to redis and verifies the connection.
func NewCoordinator(cfg Config, logger *slog.Logger) (*Coordinator, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewCoordinatorWithClient(client, cfg, logger), nil
}

// NewCoordinatorWithClient wraps an existing client (used in tests).
func NewCoordinatorWithClient(client *redis.Client, cfg Config, logger *slog.Logger) *Coordinator {
	defaults := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Coordinator{
		client:     client,
		cfg:        cfg,
		instanceID: id,
		logger:     logger.With("component", "lifecycle", "instance_id", id),
	}
}

// InstanceID identifies this coordinator instance.
func (c *Coordinator) InstanceID() string { return c.instanceID }

func (c *Coordinator) phaseKey(sessionKey int) string {
	return fmt.Sprintf("%ssession:%d:phase", c.cfg.KeyPrefix, sessionKey)
}

func (c *Coordinator) instanceKey(sessionKey int, id string) string {
	return fmt.Sprintf("%ssession:%d:instance:%s", c.cfg.KeyPrefix, sessionKey, id)
}

// SetPhase records the session phase.
func (c *Coordinator) SetPhase(ctx context.Context, sessionKey int, phase Phase) error {
	if err := c.client.Set(ctx, c.phaseKey(sessionKey), string(phase), 0).Err(); err != nil {
		return fmt.Errorf("setting session phase: %w", err)
	}
	c.logger.Info("session phase updated", "session_key", sessionKey, "phase", string(phase))
	return nil
}

// Phase returns the session phase; sessions never seen are NotStarted.
func (c *Coordinator) Phase(ctx context.Context, sessionKey int) (Phase, error) {
	v, err := c.client.Get(ctx, c.phaseKey(sessionKey)).Result()
	if err == redis.Nil {
		return PhaseNotStarted, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading session phase: %w", err)
	}
	return Phase(v), nil
}

// Heartbeat renews this instance's registration for a session.
func (c *Coordinator) Heartbeat(ctx context.Context, sessionKey int) error {
	ttl := 3 * c.cfg.HeartbeatInterval
	key := c.instanceKey(sessionKey, c.instanceID)
	if err := c.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// RunHeartbeat registers immediately, then renews until the context ends and
// deregisters on the way out.
func (c *Coordinator) RunHeartbeat(ctx context.Context, sessionKey int) error {
	if err := c.Heartbeat(ctx, sessionKey); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c.client.Del(cleanup, c.instanceKey(sessionKey, c.instanceID))
			return ctx.Err()
		case <-ticker.C:
			if err := c.Heartbeat(ctx, sessionKey); err != nil {
				c.logger.Warn("heartbeat failed", "session_key", sessionKey, "error", err)
			}
		}
	}
}

// Instances lists the instance IDs currently registered for a session.
func (c *Coordinator) Instances(ctx context.Context, sessionKey int) ([]string, error) {
	pattern := c.instanceKey(sessionKey, "*")

	var ids []string
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if i := strings.LastIndex(key, ":instance:"); i >= 0 {
			ids = append(ids, key[i+len(":instance:"):])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	return ids, nil
}

// Close releases the redis connection.
func (c *Coordinator) Close() error {
	return c.client.Close()
}
