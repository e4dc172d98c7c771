package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// spool buffers the raw live stream per topic in the archive line format
// ("H:MM:SS.fff<payload>"), so bucket uploads replay exactly like upstream
// recordings. The clock is relative to the spool start.
type spool struct {
	start time.Time

	mu     sync.Mutex
	topics map[string]*bytes.Buffer
}

func newSpool(start time.Time) *spool {
	return &spool{
		start:  start,
		topics: make(map[string]*bytes.Buffer),
	}
}

// Record appends one raw payload under its topic.
func (s *spool) Record(topic string, line []byte) {
	elapsed := time.Now().UTC().Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.topics[topic]
	if buf == nil {
		buf = &bytes.Buffer{}
		s.topics[topic] = buf
	}
	buf.WriteString(formatSessionTime(elapsed))
	buf.Write(line)
	buf.WriteString("\r\n")
}

// Snapshot renders the spool as archive blobs: one .jsonStream per topic plus
// an Index.json listing them.
func (s *spool) Snapshot() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs := make(map[string][]byte, len(s.topics)+1)
	feeds := make(map[string]map[string]string, len(s.topics))
	for topic, buf := range s.topics {
		blobs[topic+".jsonStream"] = append([]byte(nil), buf.Bytes()...)
		feeds[topic] = map[string]string{"StreamPath": topic + ".jsonStream"}
	}
	if len(feeds) > 0 {
		if index, err := json.Marshal(map[string]any{"Feeds": feeds}); err == nil {
			blobs["Index.json"] = index
		}
	}
	return blobs
}

func formatSessionTime(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	sec := (d % time.Minute) / time.Second
	ms := (d % time.Second) / time.Millisecond
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, sec, ms)
}
