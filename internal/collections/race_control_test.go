package collections

import (
	"testing"
	"time"
)

func TestRaceControlProcessor(t *testing.T) {
	p := newRaceControlProcessor(1219, 9161)

	docs, err := p.ProcessMessage(newMsg("RaceControlMessages", map[string]any{
		"Messages": map[string]any{
			"1": map[string]any{
				"Utc":      "2023-09-16T13:05:00Z",
				"Category": "Flag",
				"Flag":     "YELLOW",
				"Scope":    "Sector",
				"Sector":   7.0,
				"Message":  "YELLOW IN TRACK SECTOR 7",
			},
			"2": map[string]any{
				"Utc":          "2023-09-16T13:06:00Z",
				"Category":     "Other",
				"RacingNumber": "55",
				"Lap":          3.0,
				"Message":      "CAR 55 (SAI) TRACK LIMITS",
			},
		},
	}, time.Time{}))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	flag := docs[0].(RaceControl)
	if flag.Flag == nil || *flag.Flag != "YELLOW" || flag.Sector == nil || *flag.Sector != 7 {
		t.Errorf("unexpected flag message: %+v", flag)
	}
	if flag.DriverNumber != nil {
		t.Errorf("driver_number = %v, want nil", *flag.DriverNumber)
	}

	limits := docs[1].(RaceControl)
	if limits.DriverNumber == nil || *limits.DriverNumber != 55 {
		t.Errorf("driver_number = %v, want 55", limits.DriverNumber)
	}
	if limits.LapNumber == nil || *limits.LapNumber != 3 {
		t.Errorf("lap_number = %v, want 3", limits.LapNumber)
	}

	if flag.ID() == limits.ID() {
		t.Error("distinct race control events share an ID")
	}
}

func TestWeatherProcessor(t *testing.T) {
	p := newWeatherProcessor(1219, 9161)
	tp := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)

	docs, err := p.ProcessMessage(newMsg("WeatherData", map[string]any{
		"AirTemp":       "29.9",
		"Humidity":      "57.0",
		"Pressure":      "1008.5",
		"Rainfall":      "0",
		"TrackTemp":     "43.2",
		"WindDirection": "161",
		"WindSpeed":     "1.4",
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	w := docs[0].(Weather)
	if w.AirTemperature != 29.9 || w.TrackTemperature != 43.2 {
		t.Errorf("unexpected temperatures: %+v", w)
	}
	if w.WindDirection != 161 || w.Rainfall != 0 {
		t.Errorf("unexpected sample: %+v", w)
	}
	if !w.Date.Equal(tp) {
		t.Errorf("date = %v, want %v", w.Date, tp)
	}
}

func TestWeatherProcessorMissingField(t *testing.T) {
	p := newWeatherProcessor(1219, 9161)

	_, err := p.ProcessMessage(newMsg("WeatherData", map[string]any{
		"AirTemp": "29.9",
	}, time.Time{}))
	if err == nil {
		t.Fatal("expected error for incomplete weather sample")
	}
}
