// Package feed defines the message model shared by the live and historical
// ingestion paths, plus the decoding of the raw live-timing wire format.
package feed

import (
	"context"
	"time"
)

// Message is one unit of raw data for a (session, topic) pair. Timepoint is
// always absolute UTC: live messages carry it on the wire, historical ones
// get it from t0 + SessionTime.
type Message struct {
	Topic       string
	Content     any
	Timepoint   time.Time
	SessionTime time.Duration
}

// Source yields a chronologically ordered sequence of messages into the
// provided channel. Finite for historical replay, unbounded for live
// streaming until the context is cancelled. The channel is not closed by
// Stream; the caller owns cleanup.
type Source interface {
	Name() string

	Stream(ctx context.Context, out chan<- Message) error
}
