package collections

import (
	"testing"
	"time"
)

func TestPitProcessor(t *testing.T) {
	p := newPitProcessor(1219, 9161)
	tp := time.Date(2023, 9, 17, 14, 5, 0, 0, time.UTC)

	docs, err := p.ProcessMessage(newMsg("PitLaneTimeCollection", map[string]any{
		"PitTimes": map[string]any{
			"1":  map[string]any{"Duration": "24.5", "Lap": "15"},
			"44": map[string]any{"Lap": "16"},
		},
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	first := docs[0].(Pit)
	if first.DriverNumber != 1 || first.LapNumber != 15 {
		t.Errorf("unexpected pit: %+v", first)
	}
	if first.PitDuration == nil || *first.PitDuration != 24.5 {
		t.Errorf("pit_duration = %v, want 24.5", first.PitDuration)
	}

	second := docs[1].(Pit)
	if second.PitDuration != nil {
		t.Errorf("pit_duration = %v, want nil when absent", *second.PitDuration)
	}
}

func TestPositionProcessor(t *testing.T) {
	p := newPositionProcessor(1219, 9161)
	tp := time.Date(2023, 9, 17, 13, 30, 0, 0, time.UTC)

	docs, err := p.ProcessMessage(newMsg("TimingAppData", map[string]any{
		"Lines": map[string]any{
			"1":  map[string]any{"Line": 1.0},
			"16": map[string]any{"Line": 3.0},
			"44": map[string]any{"GridPos": "5"},
		},
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	leader := docs[0].(Position)
	if leader.DriverNumber != 1 || leader.Position != 1 {
		t.Errorf("unexpected position: %+v", leader)
	}
	third := docs[1].(Position)
	if third.DriverNumber != 16 || third.Position != 3 {
		t.Errorf("unexpected position: %+v", third)
	}
}
