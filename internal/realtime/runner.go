// Package realtime runs live ingestion: it waits for the next scheduled
// session, subscribes to the feed, derives documents until the feed goes
// quiet, and on the side spools the raw stream to the archive bucket.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pitwall/pitwall/internal/collections"
	"github.com/pitwall/pitwall/internal/feed"
	"github.com/pitwall/pitwall/internal/feed/live"
	"github.com/pitwall/pitwall/internal/lifecycle"
	"github.com/pitwall/pitwall/internal/pipeline"
	"github.com/pitwall/pitwall/internal/platform/nats"
	"github.com/pitwall/pitwall/internal/platform/objstore"
	"github.com/pitwall/pitwall/internal/schedule"
)

// Config holds live runner configuration.
type Config struct {
	Year int

	// Feed endpoint; empty selects the public one.
	FeedBaseURL string

	// Optional feed subscription token.
	FeedToken string

	// LeadTimeRace / LeadTimeOther is how long before the scheduled start to
	// begin listening. Races get a larger margin: formation laps and red-flag
	// restarts move data ahead of schedule.
	LeadTimeRace  time.Duration
	LeadTimeOther time.Duration

	// IdleTimeout ends the run once the feed has been silent this long.
	IdleTimeout time.Duration

	// UploadInterval is how often the raw spool is pushed to the archive.
	UploadInterval time.Duration

	// Pipeline tuning for the run.
	Pipeline pipeline.Config
}

// DefaultConfig returns sensible defaults for a live run.
func DefaultConfig() Config {
	return Config{
		LeadTimeRace:   time.Hour,
		LeadTimeOther:  15 * time.Minute,
		IdleTimeout:    3 * time.Hour,
		UploadInterval: time.Minute,
	}
}

// Runner wires schedule discovery, the live subscriber, the pipeline and the
// side channels (raw archive, fan-out, lifecycle) into one live run.
type Runner struct {
	cfg      Config
	schedule *schedule.Client
	registry *collections.Registry
	store    pipeline.Sink

	// Optional side channels; nil disables each.
	publisher   *nats.Publisher
	archive     *objstore.Store
	coordinator *lifecycle.Coordinator

	logger *slog.Logger
}

func NewRunner(cfg Config, sched *schedule.Client, registry *collections.Registry, store pipeline.Sink, logger *slog.Logger) *Runner {
	defaults := DefaultConfig()
	if cfg.LeadTimeRace == 0 {
		cfg.LeadTimeRace = defaults.LeadTimeRace
	}
	if cfg.LeadTimeOther == 0 {
		cfg.LeadTimeOther = defaults.LeadTimeOther
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.UploadInterval == 0 {
		cfg.UploadInterval = defaults.UploadInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		schedule: sched,
		registry: registry,
		store:    store,
		logger:   logger.With("component", "realtime"),
	}
}

// WithPublisher enables per-collection document fan-out.
func (r *Runner) WithPublisher(p *nats.Publisher) *Runner {
	r.publisher = p
	return r
}

// WithArchive enables raw stream spooling to the archive bucket.
func (r *Runner) WithArchive(s *objstore.Store) *Runner {
	r.archive = s
	return r
}

// WithCoordinator enables lifecycle registration for the ingested session.
func (r *Runner) WithCoordinator(c *lifecycle.Coordinator) *Runner {
	r.coordinator = c
	return r
}

// Run executes one live ingestion run: wait for the next session, subscribe,
// ingest until the feed goes quiet or the context ends.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	meeting, session, err := r.schedule.NextSession(ctx, r.cfg.Year, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("discovering next session: %w", err)
	}

	lead := r.cfg.LeadTimeOther
	if session.IsRace() {
		lead = r.cfg.LeadTimeRace
	}
	start, err := session.StartUTC()
	if err != nil {
		return err
	}
	listenAt := start.Add(-lead)

	logger.Info("next session discovered",
		"meeting", meeting.Name,
		"session", session.Name,
		"meeting_key", meeting.Key,
		"session_key", session.Key,
		"start", start.Format(time.RFC3339),
		"listen_at", listenAt.Format(time.RFC3339),
	)

	if wait := time.Until(listenAt); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if r.coordinator != nil {
		if err := r.coordinator.SetPhase(ctx, session.Key, lifecycle.PhaseActive); err != nil {
			logger.Warn("lifecycle phase update failed", "error", err)
		}
		go func() {
			if err := r.coordinator.RunHeartbeat(ctx, session.Key); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("heartbeat loop ended", "error", err)
			}
		}()
	}

	topics, err := r.registry.SourceTopics(nil)
	if err != nil {
		return err
	}

	var sp *spool
	subCfg := live.Config{
		BaseURL: r.cfg.FeedBaseURL,
		Topics:  topics,
		Token:   r.cfg.FeedToken,
	}
	if r.archive != nil {
		sp = newSpool(time.Now().UTC())
		subCfg.RecordLine = sp.Record

		uploadCtx, stopUploads := context.WithCancel(ctx)
		defer stopUploads()
		go r.uploadLoop(uploadCtx, sp, r.cfg.Year, meeting.Key, session.Key, logger)
	}

	source := withIdleTimeout(live.New(subCfg, logger), r.cfg.IdleTimeout)

	pipe, err := pipeline.New(r.cfg.Pipeline, r.registry, nil, meeting.Key, session.Key, logger)
	if err != nil {
		return err
	}
	sink := &fanoutSink{store: r.store, publisher: r.publisher, logger: logger}

	runErr := pipe.Run(ctx, source, sink)

	if r.archive != nil && sp != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.uploadSpool(flushCtx, sp, r.cfg.Year, meeting.Key, session.Key, logger)
	}
	if r.coordinator != nil {
		phaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.coordinator.SetPhase(phaseCtx, session.Key, lifecycle.PhaseCompleted); err != nil {
			logger.Warn("lifecycle phase update failed", "error", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("live run finished", "session_key", session.Key)
	return nil
}

// uploadLoop pushes the raw spool to the archive at a fixed interval.
func (r *Runner) uploadLoop(ctx context.Context, sp *spool, year, meetingKey, sessionKey int, logger *slog.Logger) {
	ticker := time.NewTicker(r.cfg.UploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.uploadSpool(ctx, sp, year, meetingKey, sessionKey, logger)
		}
	}
}

func (r *Runner) uploadSpool(ctx context.Context, sp *spool, year, meetingKey, sessionKey int, logger *slog.Logger) {
	prefix := objstore.SessionKeyPrefix(year, meetingKey, sessionKey)
	for name, blob := range sp.Snapshot() {
		if err := r.archive.Upload(ctx, prefix+"/"+name, blob); err != nil {
			logger.Warn("raw archive upload failed", "blob", name, "error", err)
		}
	}
}

// fanoutSink writes documents to the store and, best effort, to the
// publisher. Store failures abort the run; fan-out failures do not.
type fanoutSink struct {
	store     pipeline.Sink
	publisher *nats.Publisher
	logger    *slog.Logger
}

func (s *fanoutSink) Write(ctx context.Context, collection string, docs []collections.Document) error {
	if s.store != nil {
		if err := s.store.Write(ctx, collection, docs); err != nil {
			return err
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishDocuments(collection, docs); err != nil {
			s.logger.Warn("document fan-out failed", "collection", collection, "error", err)
		}
	}
	return nil
}

// idleTimeoutSource ends the stream cleanly when the inner source has been
// silent for too long. A session that is over stops producing data but the
// websocket stays up; this is the run's termination condition.
type idleTimeoutSource struct {
	inner   feed.Source
	timeout time.Duration
}

func withIdleTimeout(inner feed.Source, timeout time.Duration) feed.Source {
	return &idleTimeoutSource{inner: inner, timeout: timeout}
}

func (s *idleTimeoutSource) Name() string { return s.inner.Name() }

func (s *idleTimeoutSource) Stream(ctx context.Context, out chan<- feed.Message) error {
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan feed.Message, cap(out))
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.inner.Stream(innerCtx, msgs)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-msgs:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.timeout)
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-timer.C:
			cancel()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
