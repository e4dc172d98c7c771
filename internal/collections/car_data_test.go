package collections

import (
	"testing"
	"time"
)

func TestCarDataProcessor(t *testing.T) {
	p := newCarDataProcessor(1219, 9161)

	docs, err := p.ProcessMessage(newMsg("CarData.z", map[string]any{
		"Entries": []any{
			map[string]any{
				"Utc": "2023-09-16T13:00:01.123Z",
				"Cars": map[string]any{
					"1": map[string]any{
						"Channels": map[string]any{
							"0": 11200.0, "2": 312.0, "3": 8.0,
							"4": 100.0, "5": 0.0, "45": 12.0,
						},
					},
					"44": map[string]any{
						"Channels": map[string]any{"2": 308.0},
					},
				},
			},
		},
	}, time.Time{}))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	first := docs[0].(CarData)
	if first.DriverNumber != 1 {
		t.Fatalf("driver_number = %d, want 1", first.DriverNumber)
	}
	if first.RPM == nil || *first.RPM != 11200 || first.Speed == nil || *first.Speed != 312 {
		t.Errorf("unexpected channels: %+v", first)
	}
	if first.DRS == nil || *first.DRS != 12 {
		t.Errorf("drs = %v, want 12", first.DRS)
	}
	if !first.Date.Equal(time.Date(2023, 9, 16, 13, 0, 1, 123000000, time.UTC)) {
		t.Errorf("date = %v", first.Date)
	}

	second := docs[1].(CarData)
	if second.DriverNumber != 44 || second.RPM != nil {
		t.Errorf("missing channels should stay nil: %+v", second)
	}
}

func TestLocationProcessor(t *testing.T) {
	p := newLocationProcessor(1219, 9161)

	docs, err := p.ProcessMessage(newMsg("Position.z", map[string]any{
		"Position": []any{
			map[string]any{
				"Timestamp": "2023-09-16T13:00:02.5Z",
				"Entries": map[string]any{
					"16": map[string]any{"X": -1362.0, "Y": 4963.0, "Z": 7634.0},
				},
			},
		},
	}, time.Time{}))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	loc := docs[0].(Location)
	if loc.DriverNumber != 16 {
		t.Errorf("driver_number = %d, want 16", loc.DriverNumber)
	}
	if loc.X == nil || *loc.X != -1362 || loc.Y == nil || *loc.Y != 4963 || loc.Z == nil || *loc.Z != 7634 {
		t.Errorf("unexpected coordinates: %+v", loc)
	}
	if !loc.Date.Equal(time.Date(2023, 9, 16, 13, 0, 2, 500000000, time.UTC)) {
		t.Errorf("date = %v", loc.Date)
	}
}
