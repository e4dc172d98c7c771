// Package t0 derives the absolute start time of a session clock.
//
// Raw feed lines carry a session-relative time. Two topics (CarData.z and
// Position.z) additionally embed absolute UTC timestamps in their payloads;
// pairing one of those with the line's session time anchors the session clock
// to the wall clock: t0 = absolute - session time. Every message timepoint is
// then t0 + session time.
package t0

import (
	"errors"
	"log/slog"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// ErrUnresolved is returned when no anchor message has been observed yet.
var ErrUnresolved = errors.New("t0 not resolved: no anchor message observed")

// AnchorTopics are the topics whose payloads embed absolute timestamps.
var AnchorTopics = []string{"CarData.z", "Position.z"}

// driftTolerance is how far a later anchor may disagree with the resolved t0
// before it is reported. Feed timestamps jitter by a few hundred ms.
const driftTolerance = time.Second

// Resolver locks onto the first anchor it observes. Later anchors are only
// cross-checked; the first anchor stays authoritative so that replaying the
// same message sequence always yields the same t0.
type Resolver struct {
	logger   *slog.Logger
	t0       time.Time
	resolved bool
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With("component", "t0_resolver")}
}

// Resolved reports whether an anchor has been observed.
func (r *Resolver) Resolved() bool { return r.resolved }

// T0 returns the resolved session clock origin.
func (r *Resolver) T0() (time.Time, error) {
	if !r.resolved {
		return time.Time{}, ErrUnresolved
	}
	return r.t0, nil
}

// Observe inspects one message and resolves or cross-checks t0 from it.
// Non-anchor topics are ignored.
func (r *Resolver) Observe(msg feed.Message) {
	abs, ok := anchorTimestamp(msg)
	if !ok {
		return
	}
	candidate := abs.Add(-msg.SessionTime)

	if !r.resolved {
		r.t0 = candidate
		r.resolved = true
		r.logger.Info("t0 resolved",
			"topic", msg.Topic,
			"t0", r.t0.Format(time.RFC3339Nano))
		return
	}

	if drift := candidate.Sub(r.t0); drift > driftTolerance || drift < -driftTolerance {
		r.logger.Warn("anchor disagrees with resolved t0",
			"topic", msg.Topic,
			"drift", drift.String())
	}
}

// anchorTimestamp extracts the first absolute timestamp embedded in an anchor
// message payload.
func anchorTimestamp(msg feed.Message) (time.Time, bool) {
	content, ok := msg.Content.(map[string]any)
	if !ok {
		return time.Time{}, false
	}

	switch msg.Topic {
	case "Position.z":
		for _, blockRaw := range blockList(content["Position"]) {
			block, ok := blockRaw.(map[string]any)
			if !ok {
				continue
			}
			if ts, ok := block["Timestamp"].(string); ok {
				if abs, err := feed.ParseUTC(ts); err == nil {
					return abs, true
				}
			}
		}
	case "CarData.z":
		for _, entryRaw := range blockList(content["Entries"]) {
			entry, ok := entryRaw.(map[string]any)
			if !ok {
				continue
			}
			if ts, ok := entry["Utc"].(string); ok {
				if abs, err := feed.ParseUTC(ts); err == nil {
					return abs, true
				}
			}
		}
	}
	return time.Time{}, false
}

func blockList(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		values := make([]any, 0, len(m))
		for _, e := range m {
			values = append(values, e)
		}
		return values
	}
	return nil
}
