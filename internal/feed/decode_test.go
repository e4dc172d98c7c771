package feed

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"testing"
	"time"
)

func deflateB64(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("new flate writer: %v", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecode_PlainJSON(t *testing.T) {
	v, err := Decode(`{"AirTemp": "24.1", "Rainfall": "0"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	if m["AirTemp"] != "24.1" {
		t.Errorf("AirTemp = %v, want 24.1", m["AirTemp"])
	}
}

func TestDecode_Compressed(t *testing.T) {
	payload := deflateB64(t, `{"Position": [{"Timestamp": "2024-03-02T15:00:05.2Z"}]}`)

	v, err := Decode(`"` + payload + `"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	if _, ok := m["Position"]; !ok {
		t.Error("missing Position key after inflate")
	}
}

func TestDecode_CompressedWithBOM(t *testing.T) {
	payload := deflateB64(t, "\xEF\xBB\xBF"+`{"Entries": []}`)

	v, err := Decode(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := v.(map[string]any); !ok {
		t.Fatalf("expected map, got %T", v)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode("!!not-a-payload!!"); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantStamp   string
		wantPayload string
		wantOK      bool
	}{
		{
			name:        "json payload",
			line:        `00:01:02.345{"Lines": {}}`,
			wantStamp:   "00:01:02.345",
			wantPayload: `{"Lines": {}}`,
			wantOK:      true,
		},
		{
			name:        "quoted compressed payload",
			line:        `01:22:33.100"dGVzdA=="` + "\r",
			wantStamp:   "01:22:33.100",
			wantPayload: "dGVzdA==",
			wantOK:      true,
		},
		{
			name:   "blank line",
			line:   "",
			wantOK: false,
		},
		{
			name:   "no stamp",
			line:   `{"Lines": {}}`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp, payload, ok := ParseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if stamp != tt.wantStamp {
				t.Errorf("stamp = %q, want %q", stamp, tt.wantStamp)
			}
			if payload != tt.wantPayload {
				t.Errorf("payload = %q, want %q", payload, tt.wantPayload)
			}
		})
	}
}

func TestParseUTC(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-02T15:04:05.320Z", time.Date(2024, 3, 2, 15, 4, 5, 320000000, time.UTC)},
		{"2024-03-02T15:04:05.32", time.Date(2024, 3, 2, 15, 4, 5, 320000000, time.UTC)},
		{"2024-03-02T15:04:05", time.Date(2024, 3, 2, 15, 4, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseUTC(tt.in)
		if err != nil {
			t.Errorf("ParseUTC(%q): unexpected error %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseUTC(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseUTC("not a time"); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestParseSessionTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1:23:45.678", time.Hour + 23*time.Minute + 45*time.Second + 678*time.Millisecond},
		{"23:45", 23*time.Minute + 45*time.Second},
		{"45.678", 45*time.Second + 678*time.Millisecond},
		{"00:00:05.200", 5*time.Second + 200*time.Millisecond},
	}
	for _, tt := range tests {
		got, err := ParseSessionTime(tt.in)
		if err != nil {
			t.Errorf("ParseSessionTime(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSessionTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseSessionTime(""); err == nil {
		t.Error("expected error for empty input")
	}
}
