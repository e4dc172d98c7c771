// Package pipeline orchestrates one ingestion run: it pulls messages from a
// source, routes them to collection processors, deduplicates the derived
// documents and hands them to a sink.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pitwall/pitwall/internal/collections"
	"github.com/pitwall/pitwall/internal/feed"
)

// State is the run state of a pipeline. Transitions are monotonic:
// Idle -> ResolvingT0 -> Replaying|Streaming -> Draining -> Completed, with
// Failed reachable from any state.
type State string

const (
	StateIdle        State = "idle"
	StateResolvingT0 State = "resolving_t0"
	StateReplaying   State = "replaying"
	StateStreaming   State = "streaming"
	StateDraining    State = "draining"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Sink receives derived documents as the pipeline produces them.
type Sink interface {
	Write(ctx context.Context, collection string, docs []collections.Document) error
}

// Config holds pipeline tuning knobs.
type Config struct {
	// Parallel processes stateless collections over a worker pool. Stateful
	// collections always run sequentially in message order.
	Parallel bool

	// MaxWorkers bounds the pool in parallel mode.
	MaxWorkers int

	// BatchSize is the number of messages handed to a worker at once.
	BatchSize int

	// BufferSize is the source channel capacity for streaming runs.
	BufferSize int
}

func DefaultConfig() Config {
	return Config{
		MaxWorkers: 4,
		BatchSize:  512,
		BufferSize: 1024,
	}
}

// Pipeline drives one ingestion run. It is not reusable: construct a fresh
// pipeline (and with it, fresh processor state) per run.
type Pipeline struct {
	cfg        Config
	logger     *slog.Logger
	registry   *collections.Registry
	names      []string
	meetingKey int
	sessionKey int

	mu      sync.Mutex
	state   State
	skipped uint64
}

func New(cfg Config, registry *collections.Registry, names []string, meetingKey, sessionKey int, logger *slog.Logger) (*Pipeline, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		return nil, fmt.Errorf("pipeline requires a collection registry")
	}
	if len(names) == 0 {
		names = registry.Names()
	}
	return &Pipeline{
		cfg:        cfg,
		logger:     logger.With("component", "pipeline"),
		registry:   registry,
		names:      names,
		meetingKey: meetingKey,
		sessionKey: sessionKey,
		state:      StateIdle,
	}, nil
}

// State returns the current run state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Skipped returns the number of messages dropped by processor errors.
func (p *Pipeline) Skipped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	p.mu.Unlock()
	p.logger.Info("pipeline state change", "from", string(prev), "to", string(s))
}

func (p *Pipeline) countSkip() {
	p.mu.Lock()
	p.skipped++
	p.mu.Unlock()
}

// routing maps each source topic to the processors consuming it.
func routing(procs []collections.Processor) map[string][]collections.Processor {
	byTopic := make(map[string][]collections.Processor)
	for _, proc := range procs {
		for _, topic := range proc.SourceTopics() {
			byTopic[topic] = append(byTopic[topic], proc)
		}
	}
	return byTopic
}

// dispatch feeds one message to every processor subscribed to its topic and
// returns the derived documents per collection. Processor errors skip the
// message for that collection only.
func (p *Pipeline) dispatch(byTopic map[string][]collections.Processor, msg feed.Message) map[string][]collections.Document {
	procs := byTopic[msg.Topic]
	if len(procs) == 0 {
		return nil
	}

	out := make(map[string][]collections.Document)
	for _, proc := range procs {
		docs, err := proc.ProcessMessage(msg)
		if err != nil {
			p.countSkip()
			p.logger.Warn("processor rejected message",
				"collection", proc.Name(),
				"topic", msg.Topic,
				"error", err,
			)
			continue
		}
		if len(docs) > 0 {
			out[proc.Name()] = append(out[proc.Name()], docs...)
		}
	}
	return out
}

// Run streams messages from a source into a sink until the source is
// exhausted or the context is cancelled. Documents are written incrementally
// in arrival order; sequential mode only.
func (p *Pipeline) Run(ctx context.Context, source feed.Source, sink Sink) error {
	procs, err := p.registry.NewAll(p.names, p.meetingKey, p.sessionKey)
	if err != nil {
		p.setState(StateFailed)
		return err
	}
	byTopic := routing(procs)

	p.setState(StateResolvingT0)

	msgs := make(chan feed.Message, p.cfg.BufferSize)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- source.Stream(ctx, msgs)
	}()

	running := StateStreaming
	if source.Name() == "historical" {
		running = StateReplaying
	}

	first := true
	var processed uint64
	for {
		select {
		case msg := <-msgs:
			if first {
				p.setState(running)
				first = false
			}
			processed++
			if err := p.writeDocs(ctx, sink, p.dispatch(byTopic, msg)); err != nil {
				p.setState(StateFailed)
				return err
			}
		case err := <-streamErr:
			if err != nil && ctx.Err() == nil {
				p.setState(StateFailed)
				return fmt.Errorf("source %s: %w", source.Name(), err)
			}
			// Source finished or run cancelled: drain what is buffered.
			p.setState(StateDraining)
			for {
				select {
				case msg := <-msgs:
					processed++
					if err := p.writeDocs(ctx, sink, p.dispatch(byTopic, msg)); err != nil {
						p.setState(StateFailed)
						return err
					}
				default:
					p.setState(StateCompleted)
					p.logger.Info("run completed", "messages", processed, "skipped", p.Skipped())
					return ctx.Err()
				}
			}
		}
	}
}

func (p *Pipeline) writeDocs(ctx context.Context, sink Sink, docs map[string][]collections.Document) error {
	for _, collection := range sortedCollections(docs) {
		if err := sink.Write(ctx, collection, docs[collection]); err != nil {
			return fmt.Errorf("writing %s documents: %w", collection, err)
		}
	}
	return nil
}

// ProcessMessages derives all documents from a fixed message sequence. The
// result is deduplicated by natural key (last write wins) and sorted by key,
// so re-processing the same sequence yields an identical result.
func (p *Pipeline) ProcessMessages(ctx context.Context, msgs []feed.Message) (map[string][]collections.Document, error) {
	p.setState(StateReplaying)

	buf := newBuffer()

	var sequential, parallel []string
	for _, name := range p.names {
		proc, err := p.registry.New(name, p.meetingKey, p.sessionKey)
		if err != nil {
			p.setState(StateFailed)
			return nil, err
		}
		if p.cfg.Parallel && !proc.Stateful() {
			parallel = append(parallel, name)
		} else {
			sequential = append(sequential, name)
		}
	}

	if len(sequential) > 0 {
		procs, err := p.registry.NewAll(sequential, p.meetingKey, p.sessionKey)
		if err != nil {
			p.setState(StateFailed)
			return nil, err
		}
		byTopic := routing(procs)
		for _, msg := range msgs {
			if err := ctx.Err(); err != nil {
				p.setState(StateFailed)
				return nil, err
			}
			buf.add(p.dispatch(byTopic, msg))
		}
	}

	if len(parallel) > 0 {
		if err := p.processParallel(ctx, msgs, parallel, buf); err != nil {
			p.setState(StateFailed)
			return nil, err
		}
	}

	p.setState(StateDraining)
	out := buf.sorted(p.names)
	p.setState(StateCompleted)
	return out, nil
}

// processParallel fans fixed-size message batches out to a bounded worker
// pool. Each worker owns fresh processor instances, which is safe because
// only stateless collections are dispatched here.
func (p *Pipeline) processParallel(ctx context.Context, msgs []feed.Message, names []string, buf *buffer) error {
	batches := make(chan []feed.Message, p.cfg.MaxWorkers)

	var wg sync.WaitGroup
	errs := make(chan error, p.cfg.MaxWorkers)
	for i := 0; i < p.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			procs, err := p.registry.NewAll(names, p.meetingKey, p.sessionKey)
			if err != nil {
				errs <- err
				return
			}
			byTopic := routing(procs)
			for batch := range batches {
				for _, msg := range batch {
					buf.add(p.dispatch(byTopic, msg))
				}
			}
		}(i)
	}

	for start := 0; start < len(msgs); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		select {
		case batches <- msgs[start:end]:
		case <-ctx.Done():
			close(batches)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(batches)
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// buffer deduplicates documents by natural key. Writing the same key twice
// keeps the later document.
type buffer struct {
	mu   sync.Mutex
	docs map[string]map[string]collections.Document
}

func newBuffer() *buffer {
	return &buffer{docs: make(map[string]map[string]collections.Document)}
}

func (b *buffer) add(byCollection map[string][]collections.Document) {
	if len(byCollection) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for collection, docs := range byCollection {
		byID := b.docs[collection]
		if byID == nil {
			byID = make(map[string]collections.Document)
			b.docs[collection] = byID
		}
		for _, doc := range docs {
			byID[doc.ID()] = doc
		}
	}
}

// sorted renders the buffer into per-collection document lists ordered by
// natural key. Requested collections without documents map to empty lists.
func (b *buffer) sorted(names []string) map[string][]collections.Document {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][]collections.Document, len(names))
	for _, name := range names {
		byID := b.docs[name]
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		docs := make([]collections.Document, 0, len(ids))
		for _, id := range ids {
			docs = append(docs, byID[id])
		}
		out[name] = docs
	}
	return out
}

func sortedCollections(docs map[string][]collections.Document) []string {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
