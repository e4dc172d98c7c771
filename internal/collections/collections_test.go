package collections

import (
	"testing"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

func newMsg(topic string, content any, tp time.Time) feed.Message {
	return feed.Message{Topic: topic, Content: content, Timepoint: tp}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	names := r.Names()

	want := []string{
		"car_data", "championship_drivers", "championship_teams", "drivers",
		"intervals", "laps", "location", "meetings", "overtakes", "pit",
		"position", "race_control", "sessions", "stints", "team_radio",
		"weather",
	}
	if len(names) != len(want) {
		t.Fatalf("got %d collections, want %d: %v", len(names), len(want), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestRegistryUnknownCollection(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New("telemetry", 1219, 9161); err == nil {
		t.Fatal("expected error for unknown collection")
	}
}

func TestRegistryNewAll(t *testing.T) {
	r := NewRegistry()

	procs, err := r.NewAll([]string{"weather", "laps"}, 1219, 9161)
	if err != nil {
		t.Fatalf("NewAll: %v", err)
	}
	if len(procs) != 2 {
		t.Fatalf("got %d processors, want 2", len(procs))
	}
	if procs[0].Name() != "weather" || procs[1].Name() != "laps" {
		t.Errorf("unexpected processors: %s, %s", procs[0].Name(), procs[1].Name())
	}

	all, err := r.NewAll(nil, 1219, 9161)
	if err != nil {
		t.Fatalf("NewAll(nil): %v", err)
	}
	if len(all) != len(r.Names()) {
		t.Errorf("got %d processors, want %d", len(all), len(r.Names()))
	}
}

func TestRegistrySourceTopics(t *testing.T) {
	r := NewRegistry()

	topics, err := r.SourceTopics([]string{"laps", "stints", "weather"})
	if err != nil {
		t.Fatalf("SourceTopics: %v", err)
	}
	want := []string{"TimingAppData", "TimingData", "WeatherData"}
	if len(topics) != len(want) {
		t.Fatalf("got topics %v, want %v", topics, want)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topics[%d] = %q, want %q", i, topics[i], want[i])
		}
	}
}

func TestNaturalKey(t *testing.T) {
	date := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{"ints", []any{9161, 1}, "9161_1"},
		{"time as epoch millis", []any{date, 44}, "1694869200000_44"},
		{"nil renders none", []any{nil, 16}, "none_16"},
		{"nil int pointer", []any{(*int)(nil), "LapNumber"}, "none_LapNumber"},
		{"nil time pointer", []any{(*time.Time)(nil)}, "none"},
		{"float minimal digits", []any{1.5}, "1.5"},
		{"string passthrough", []any{"Flag", true}, "Flag_true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := naturalKey(tt.parts...); got != tt.want {
				t.Errorf("naturalKey(%v) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}
}

func TestSortedKeysNumeric(t *testing.T) {
	m := map[string]any{"10": nil, "2": nil, "1": nil, "_kf": nil}
	got := sortedKeys(m)
	want := []string{"1", "2", "10", "_kf"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortedKeys = %v, want %v", got, want)
		}
	}
}
