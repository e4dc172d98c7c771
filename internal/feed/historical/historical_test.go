package historical

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

type fakeFetcher struct {
	blobs   map[string]string
	fetches map[string]int
}

func (f *fakeFetcher) Fetch(_ context.Context, name string) ([]byte, error) {
	if f.fetches == nil {
		f.fetches = make(map[string]int)
	}
	f.fetches[name]++
	blob, ok := f.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrTopicNotAvailable)
	}
	return []byte(blob), nil
}

func deflateB64(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func sessionFixture(t *testing.T) *fakeFetcher {
	t.Helper()

	positionPayload := deflateB64(t, `{"Position":[{"Timestamp":"2023-09-16T13:10:00Z","Entries":{}}]}`)
	return &fakeFetcher{blobs: map[string]string{
		"Index.json": `{"Feeds":{
			"SessionInfo":{"StreamPath":"SessionInfo.json"},
			"Position.z":{"StreamPath":"Position.z.jsonStream"},
			"WeatherData":{"StreamPath":"WeatherData.jsonStream"}}}`,
		"Position.z.jsonStream": `0:10:00.000"` + positionPayload + `"` + "\r\n",
		"WeatherData.jsonStream": `0:01:00.000{"AirTemp":"29.0"}` + "\r\n" +
			`0:05:00.000{"AirTemp":"30.5"}` + "\r\n" +
			"not a data line\r\n",
	}}
}

func TestReaderTopics(t *testing.T) {
	r := NewReader(sessionFixture(t), nil)

	topics, err := r.Topics(context.Background())
	if err != nil {
		t.Fatalf("Topics: %v", err)
	}

	// Only .jsonStream feeds count as topics.
	want := []string{"Position.z", "WeatherData"}
	if len(topics) != len(want) {
		t.Fatalf("topics = %v, want %v", topics, want)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topics[%d] = %q, want %q", i, topics[i], want[i])
		}
	}
}

func TestReaderTopicContentCached(t *testing.T) {
	f := sessionFixture(t)
	r := NewReader(f, nil)
	ctx := context.Background()

	if _, err := r.TopicContent(ctx, "WeatherData"); err != nil {
		t.Fatalf("TopicContent: %v", err)
	}
	if _, err := r.TopicContent(ctx, "WeatherData"); err != nil {
		t.Fatalf("TopicContent: %v", err)
	}
	if n := f.fetches["WeatherData.jsonStream"]; n != 1 {
		t.Errorf("topic fetched %d times, want 1", n)
	}
}

func TestReaderResolveT0(t *testing.T) {
	r := NewReader(sessionFixture(t), nil)

	// CarData.z is not recorded for this session; Position.z anchors alone.
	start, err := r.ResolveT0(context.Background())
	if err != nil {
		t.Fatalf("ResolveT0: %v", err)
	}
	want := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("t0 = %v, want %v", start, want)
	}
}

func TestReaderResolveT0NoAnchors(t *testing.T) {
	r := NewReader(&fakeFetcher{blobs: map[string]string{}}, nil)
	if _, err := r.ResolveT0(context.Background()); err == nil {
		t.Fatal("expected error when no anchor topics are recorded")
	}
}

func TestReaderMessagesSortedAndAnchored(t *testing.T) {
	r := NewReader(sessionFixture(t), nil)
	start := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)

	// SessionInfo has no recording and must be skipped, not fail the replay.
	msgs, err := r.Messages(context.Background(), []string{"WeatherData", "SessionInfo", "Position.z"}, start)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	wantOrder := []struct {
		topic  string
		offset time.Duration
	}{
		{"WeatherData", time.Minute},
		{"WeatherData", 5 * time.Minute},
		{"Position.z", 10 * time.Minute},
	}
	for i, want := range wantOrder {
		if msgs[i].Topic != want.topic {
			t.Errorf("msgs[%d].Topic = %q, want %q", i, msgs[i].Topic, want.topic)
		}
		if msgs[i].SessionTime != want.offset {
			t.Errorf("msgs[%d].SessionTime = %v, want %v", i, msgs[i].SessionTime, want.offset)
		}
		if !msgs[i].Timepoint.Equal(start.Add(want.offset)) {
			t.Errorf("msgs[%d].Timepoint = %v, want %v", i, msgs[i].Timepoint, start.Add(want.offset))
		}
	}

	content, ok := msgs[0].Content.(map[string]any)
	if !ok || content["AirTemp"] != "29.0" {
		t.Errorf("unexpected decoded content: %v", msgs[0].Content)
	}
}

func TestSourceStream(t *testing.T) {
	r := NewReader(sessionFixture(t), nil)
	src := NewSource(r, []string{"WeatherData", "Position.z"}, nil)

	if src.Name() != "historical" {
		t.Errorf("Name = %q", src.Name())
	}

	out := make(chan feed.Message, 16)
	if err := src.Stream(context.Background(), out); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	close(out)

	var msgs []feed.Message
	for msg := range out {
		msgs = append(msgs, msg)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Topic != "WeatherData" || msgs[2].Topic != "Position.z" {
		t.Errorf("unexpected replay order: %v, %v", msgs[0].Topic, msgs[2].Topic)
	}
}

func TestSourceStreamCancelled(t *testing.T) {
	r := NewReader(sessionFixture(t), nil)
	src := NewSource(r, []string{"WeatherData"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan feed.Message) // unbuffered: send must hit ctx.Done
	if err := src.Stream(ctx, out); err == nil {
		t.Fatal("expected context error")
	}
}
