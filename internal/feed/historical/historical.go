// Package historical replays recorded session feeds.
//
// Recorded sessions are served as one .jsonStream file per topic, listed by
// an Index.json next to them. Each line pairs a session-relative time with a
// raw payload; replay decodes every line, anchors the session clock and emits
// the merged message sequence in deterministic order.
package historical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
	"github.com/pitwall/pitwall/internal/t0"
)

// ErrTopicNotAvailable is returned when a session has no recording for a
// topic. Not every topic is recorded for every session.
var ErrTopicNotAvailable = errors.New("topic not available for this session")

// Fetcher retrieves one named blob of a recorded session. Implementations
// exist for the upstream static HTTP archive and for raw archive buckets.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

type httpFetcher struct {
	sessionURL string
	client     *http.Client
}

// NewHTTPFetcher fetches session blobs relative to a session URL on the
// upstream static archive.
func NewHTTPFetcher(sessionURL string) Fetcher {
	return &httpFetcher{
		sessionURL: strings.TrimSuffix(sessionURL, "/"),
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	url := f.sessionURL + "/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", name, ErrTopicNotAvailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, nil
}

// Reader parses and merges the topic recordings of one session.
type Reader struct {
	fetch  Fetcher
	logger *slog.Logger

	// Topic contents are fetched twice (t0 resolution, then replay), so
	// cache them.
	cache map[string][]string
}

func NewReader(fetch Fetcher, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		fetch:  fetch,
		logger: logger.With("component", "historical_reader"),
		cache:  make(map[string][]string),
	}
}

type indexFile struct {
	Feeds map[string]struct {
		StreamPath string `json:"StreamPath"`
	} `json:"Feeds"`
}

// Topics lists the recorded topics of the session, sorted.
func (r *Reader) Topics(ctx context.Context) ([]string, error) {
	body, err := r.fetch.Fetch(ctx, "Index.json")
	if err != nil {
		return nil, fmt.Errorf("fetching session index: %w", err)
	}

	var index indexFile
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("parsing session index: %w", err)
	}

	var topics []string
	for _, f := range index.Feeds {
		if topic, ok := strings.CutSuffix(f.StreamPath, ".jsonStream"); ok {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics, nil
}

// TopicContent returns the raw recording lines of one topic.
func (r *Reader) TopicContent(ctx context.Context, topic string) ([]string, error) {
	if lines, ok := r.cache[topic]; ok {
		return lines, nil
	}

	body, err := r.fetch.Fetch(ctx, topic+".jsonStream")
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(body), "\r\n")
	r.cache[topic] = lines
	return lines, nil
}

// topicMessages parses and decodes one topic recording. Malformed lines are
// skipped. Timepoints are left unset; the caller anchors them once t0 is
// known.
func (r *Reader) topicMessages(ctx context.Context, topic string) ([]feed.Message, error) {
	lines, err := r.TopicContent(ctx, topic)
	if err != nil {
		return nil, err
	}

	var msgs []feed.Message
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		stamp, payload, ok := feed.ParseLine(line)
		if !ok {
			continue
		}
		sessionTime, err := feed.ParseSessionTime(stamp)
		if err != nil {
			r.logger.Warn("skipping line with bad session time", "topic", topic, "error", err)
			continue
		}
		content, err := feed.Decode(payload)
		if err != nil {
			r.logger.Warn("skipping undecodable line", "topic", topic, "error", err)
			continue
		}
		msgs = append(msgs, feed.Message{
			Topic:       topic,
			Content:     content,
			SessionTime: sessionTime,
		})
	}
	return msgs, nil
}

// ResolveT0 anchors the session clock from the recorded anchor topics. The
// first anchor in recording order is authoritative.
func (r *Reader) ResolveT0(ctx context.Context) (time.Time, error) {
	resolver := t0.NewResolver(r.logger)

	for _, topic := range t0.AnchorTopics {
		msgs, err := r.topicMessages(ctx, topic)
		if errors.Is(err, ErrTopicNotAvailable) {
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		for _, msg := range msgs {
			resolver.Observe(msg)
		}
	}

	return resolver.T0()
}

// Messages fetches, decodes and merges the given topics, anchored at start.
// The result is sorted by (timepoint, topic) so replay order is deterministic
// regardless of which topics are requested. Topics without a recording are
// skipped.
func (r *Reader) Messages(ctx context.Context, topics []string, start time.Time) ([]feed.Message, error) {
	var msgs []feed.Message
	for _, topic := range topics {
		topicMsgs, err := r.topicMessages(ctx, topic)
		if errors.Is(err, ErrTopicNotAvailable) {
			r.logger.Warn("topic not recorded for session", "topic", topic)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading topic %s: %w", topic, err)
		}
		msgs = append(msgs, topicMsgs...)
	}

	for i := range msgs {
		msgs[i].Timepoint = start.Add(msgs[i].SessionTime)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timepoint.Equal(msgs[j].Timepoint) {
			return msgs[i].Timepoint.Before(msgs[j].Timepoint)
		}
		return msgs[i].Topic < msgs[j].Topic
	})
	return msgs, nil
}

// Source replays a recorded session as a message stream.
type Source struct {
	reader *Reader
	topics []string
	logger *slog.Logger
}

func NewSource(reader *Reader, topics []string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		reader: reader,
		topics: topics,
		logger: logger.With("component", "historical_source"),
	}
}

func (s *Source) Name() string { return "historical" }

// Stream resolves t0, then emits the merged message sequence. The output
// channel is left open for the caller to clean up.
func (s *Source) Stream(ctx context.Context, out chan<- feed.Message) error {
	start, err := s.reader.ResolveT0(ctx)
	if err != nil {
		return fmt.Errorf("resolving session start: %w", err)
	}

	msgs, err := s.reader.Messages(ctx, s.topics, start)
	if err != nil {
		return err
	}
	s.logger.Info("replaying recorded session", "messages", len(msgs), "topics", len(s.topics))

	for _, msg := range msgs {
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
