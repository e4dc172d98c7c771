package t0

import (
	"testing"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

func positionMsg(ts string, sessionTime time.Duration) feed.Message {
	return feed.Message{
		Topic: "Position.z",
		Content: map[string]any{
			"Position": []any{
				map[string]any{
					"Timestamp": ts,
					"Entries":   map[string]any{},
				},
			},
		},
		SessionTime: sessionTime,
	}
}

func carDataMsg(ts string, sessionTime time.Duration) feed.Message {
	return feed.Message{
		Topic: "CarData.z",
		Content: map[string]any{
			"Entries": []any{
				map[string]any{"Utc": ts, "Cars": map[string]any{}},
			},
		},
		SessionTime: sessionTime,
	}
}

func TestResolverUnresolved(t *testing.T) {
	r := NewResolver(nil)
	if r.Resolved() {
		t.Fatal("fresh resolver reports resolved")
	}
	if _, err := r.T0(); err != ErrUnresolved {
		t.Fatalf("T0 error = %v, want ErrUnresolved", err)
	}

	// Non-anchor topics never resolve.
	r.Observe(feed.Message{Topic: "WeatherData", Content: map[string]any{"AirTemp": "30"}})
	if r.Resolved() {
		t.Fatal("non-anchor topic resolved t0")
	}
}

func TestResolverFirstAnchorWins(t *testing.T) {
	r := NewResolver(nil)

	// Absolute 13:10:00 at session time 10m puts t0 at 13:00:00.
	r.Observe(positionMsg("2023-09-16T13:10:00Z", 10*time.Minute))
	if !r.Resolved() {
		t.Fatal("anchor did not resolve t0")
	}
	got, err := r.T0()
	if err != nil {
		t.Fatalf("T0: %v", err)
	}
	want := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("t0 = %v, want %v", got, want)
	}

	// A later drifting anchor must not move t0.
	r.Observe(carDataMsg("2023-09-16T13:15:05Z", 15*time.Minute))
	got, _ = r.T0()
	if !got.Equal(want) {
		t.Fatalf("t0 moved to %v after later anchor", got)
	}
}

func TestResolverCarDataAnchor(t *testing.T) {
	r := NewResolver(nil)

	r.Observe(carDataMsg("2023-09-16T13:00:30.500Z", 30500*time.Millisecond))
	got, err := r.T0()
	if err != nil {
		t.Fatalf("T0: %v", err)
	}
	want := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("t0 = %v, want %v", got, want)
	}
}

func TestAnchorTimestampMalformed(t *testing.T) {
	tests := []struct {
		name string
		msg  feed.Message
	}{
		{"non-map content", feed.Message{Topic: "Position.z", Content: "garbage"}},
		{"missing blocks", feed.Message{Topic: "Position.z", Content: map[string]any{}}},
		{"bad timestamp", positionMsg("not-a-time", time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := anchorTimestamp(tt.msg); ok {
				t.Error("anchorTimestamp accepted malformed message")
			}
		})
	}
}
