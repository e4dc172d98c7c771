package collections

import (
	"testing"
	"time"
)

func TestParseTimeDelta(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"leader reports lap count", "LAP 37", 0.0},
		{"lapped car keeps label", "+1 LAP", "+1 LAP"},
		{"seconds", "+3.456", 3.456},
		{"minutes and seconds", "+1:02.345", 62.345},
		{"already numeric", 5.2, 5.2},
		{"empty string passthrough", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTimeDelta(tt.in); got != tt.want {
				t.Errorf("parseTimeDelta(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIntervalsProcessor(t *testing.T) {
	p := newIntervalsProcessor(1219, 9161)
	tp := time.Date(2023, 9, 17, 13, 30, 0, 0, time.UTC)

	docs, err := p.ProcessMessage(newMsg("DriverRaceInfo", map[string]any{
		"1":  map[string]any{"Gap": "LAP 37", "Interval": "LAP 37"},
		"44": map[string]any{"Gap": "+5.123", "Interval": "+0.821"},
		"81": map[string]any{"Position": "3"},
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2 (driver without gap data skipped)", len(docs))
	}

	leader := docs[0].(Interval)
	if leader.DriverNumber != 1 || leader.GapToLeader != 0.0 {
		t.Errorf("unexpected leader interval: %+v", leader)
	}
	chaser := docs[1].(Interval)
	if chaser.DriverNumber != 44 || chaser.GapToLeader != 5.123 || chaser.IntervalAhead != 0.821 {
		t.Errorf("unexpected interval: %+v", chaser)
	}
	if chaser.ID() == leader.ID() {
		t.Error("intervals of different drivers share an ID")
	}
}
