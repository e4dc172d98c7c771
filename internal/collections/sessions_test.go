package collections

import (
	"testing"
	"time"
)

var sessionInfoContent = map[string]any{
	"Meeting": map[string]any{
		"Key":          1219.0,
		"Name":         "Singapore Grand Prix",
		"OfficialName": "FORMULA 1 SINGAPORE AIRLINES SINGAPORE GRAND PRIX 2023",
		"Location":     "Marina Bay",
		"Country": map[string]any{
			"Key":  157.0,
			"Code": "SGP",
			"Name": "Singapore",
		},
		"Circuit": map[string]any{
			"Key":       61.0,
			"ShortName": "Singapore",
		},
	},
	"Key":       9161.0,
	"Type":      "Qualifying",
	"Name":      "Qualifying",
	"StartDate": "2023-09-16T21:00:00",
	"EndDate":   "2023-09-16T22:00:00",
	"GmtOffset": "08:00:00",
	"Path":      "2023/2023-09-17_Singapore_Grand_Prix/2023-09-16_Qualifying/",
}

func TestSessionsProcessor(t *testing.T) {
	p := newSessionsProcessor(1219, 9161)

	docs, err := p.ProcessMessage(newMsg("SessionInfo", sessionInfoContent, time.Time{}))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	s := docs[0].(Session)
	if s.SessionKey != 9161 || s.MeetingKey != 1219 {
		t.Errorf("unexpected keys: %+v", s)
	}
	// Local 21:00 at GMT+8 is 13:00 UTC.
	wantStart := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)
	if s.DateStart == nil || !s.DateStart.Equal(wantStart) {
		t.Errorf("date_start = %v, want %v", s.DateStart, wantStart)
	}
	if s.DateEnd == nil || !s.DateEnd.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("date_end = %v", s.DateEnd)
	}
	if s.SessionName == nil || *s.SessionName != "Qualifying" {
		t.Errorf("session_name = %v", s.SessionName)
	}
	if s.CountryCode == nil || *s.CountryCode != "SGP" {
		t.Errorf("country_code = %v", s.CountryCode)
	}
	if s.CircuitShortName == nil || *s.CircuitShortName != "Singapore" {
		t.Errorf("circuit_short_name = %v", s.CircuitShortName)
	}
	if s.Year == nil || *s.Year != 2023 {
		t.Errorf("year = %v", s.Year)
	}
	if s.ID() != "9161" {
		t.Errorf("ID = %q, want 9161", s.ID())
	}
}

func TestMeetingsProcessor(t *testing.T) {
	p := newMeetingsProcessor(1219, 9161)

	docs, err := p.ProcessMessage(newMsg("SessionInfo", sessionInfoContent, time.Time{}))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	m := docs[0].(Meeting)
	if m.MeetingKey != 1219 {
		t.Errorf("meeting_key = %d, want 1219", m.MeetingKey)
	}
	if m.MeetingName == nil || *m.MeetingName != "Singapore Grand Prix" {
		t.Errorf("meeting_name = %v", m.MeetingName)
	}
	if m.CircuitKey == nil || *m.CircuitKey != 61 {
		t.Errorf("circuit_key = %v", m.CircuitKey)
	}
	if m.CountryKey == nil || *m.CountryKey != 157 {
		t.Errorf("country_key = %v", m.CountryKey)
	}
	wantStart := time.Date(2023, 9, 16, 13, 0, 0, 0, time.UTC)
	if m.DateStart == nil || !m.DateStart.Equal(wantStart) {
		t.Errorf("date_start = %v, want %v", m.DateStart, wantStart)
	}
	if m.ID() != "1694869200000" {
		t.Errorf("ID = %q, want 1694869200000", m.ID())
	}
}

func TestParseGmtOffsetDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"08:00:00", 8 * time.Hour},
		{"-05:30:00", -(5*time.Hour + 30*time.Minute)},
		{"00:00:00", 0},
	}
	for _, tt := range tests {
		got, err := parseGmtOffsetDuration(tt.in)
		if err != nil {
			t.Errorf("parseGmtOffsetDuration(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseGmtOffsetDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
