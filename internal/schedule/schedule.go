// Package schedule fetches the season schedule from the upstream static
// archive and resolves meeting/session keys to archive paths.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// DefaultBaseURL is the upstream static archive root.
const DefaultBaseURL = "https://livetiming.formula1.com/static"

var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is one timed activity period within a meeting.
type Session struct {
	Key       int    `json:"Key"`
	Type      string `json:"Type"`
	Name      string `json:"Name"`
	Path      string `json:"Path"`
	StartDate string `json:"StartDate"`
	EndDate   string `json:"EndDate"`
	GmtOffset string `json:"GmtOffset"`
}

// Meeting is a race weekend.
type Meeting struct {
	Key      int       `json:"Key"`
	Code     string    `json:"Code"`
	Name     string    `json:"Name"`
	Location string    `json:"Location"`
	Sessions []Session `json:"Sessions"`
}

// Index is the per-year schedule document (past events only).
type Index struct {
	Year     int       `json:"Year"`
	Meetings []Meeting `json:"Meetings"`
}

// StartUTC returns the session start instant in UTC, resolving the local
// StartDate with the meeting's GMT offset.
func (s Session) StartUTC() (time.Time, error) {
	local, err := feed.ParseUTC(s.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session start: %w", err)
	}
	offset, err := parseGmtOffset(s.GmtOffset)
	if err != nil {
		return time.Time{}, err
	}
	return local.Add(-offset), nil
}

// EndUTC returns the session end instant in UTC.
func (s Session) EndUTC() (time.Time, error) {
	local, err := feed.ParseUTC(s.EndDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session end: %w", err)
	}
	offset, err := parseGmtOffset(s.GmtOffset)
	if err != nil {
		return time.Time{}, err
	}
	return local.Add(-offset), nil
}

// IsRace reports whether the session is a race (sprint or grand prix).
func (s Session) IsRace() bool {
	return strings.EqualFold(s.Type, "Race")
}

func parseGmtOffset(offset string) (time.Duration, error) {
	if offset == "" {
		return 0, nil
	}
	sign := time.Duration(1)
	if strings.HasPrefix(offset, "-") {
		sign = -1
		offset = offset[1:]
	}
	var h, m, s int
	if _, err := fmt.Sscanf(offset, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("parse gmt offset %q: %w", offset, err)
	}
	return sign * (time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second), nil
}

// Client fetches and caches per-year schedules.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	cache map[int]*Index
}

// NewClient creates a schedule client. An empty baseURL selects the upstream
// archive.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "schedule"),
		cache:   make(map[int]*Index),
	}
}

// BaseURL returns the archive root this client reads from.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Index fetches the schedule for a year. Results are cached per client; the
// upstream document only ever lists past events.
func (c *Client) Index(ctx context.Context, year int) (*Index, error) {
	if idx, ok := c.cache[year]; ok {
		return idx, nil
	}

	url := fmt.Sprintf("%s/%d/Index.json", c.baseURL, year)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule for %d: %w", year, err)
	}

	var idx Index
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("decode schedule for %d: %w", year, err)
	}

	c.cache[year] = &idx
	c.logger.Debug("fetched schedule", "year", year, "meetings", len(idx.Meetings))
	return &idx, nil
}

// MeetingKeys returns the meeting keys of a year in schedule order.
func (c *Client) MeetingKeys(ctx context.Context, year int) ([]int, error) {
	idx, err := c.Index(ctx, year)
	if err != nil {
		return nil, err
	}
	keys := make([]int, 0, len(idx.Meetings))
	for _, m := range idx.Meetings {
		keys = append(keys, m.Key)
	}
	return keys, nil
}

// SessionKeys returns the session keys of a meeting. Placeholder sessions
// (key -1) are skipped.
func (c *Client) SessionKeys(ctx context.Context, year, meetingKey int) ([]int, error) {
	idx, err := c.Index(ctx, year)
	if err != nil {
		return nil, err
	}
	for _, m := range idx.Meetings {
		if m.Key != meetingKey {
			continue
		}
		keys := make([]int, 0, len(m.Sessions))
		for _, s := range m.Sessions {
			if s.Key == -1 {
				continue
			}
			keys = append(keys, s.Key)
		}
		return keys, nil
	}
	return nil, fmt.Errorf("%w (year %d, meeting %d)", ErrMeetingNotFound, year, meetingKey)
}

// NextSession returns the earliest session of a year that has not ended at
// the given instant, with its meeting.
func (c *Client) NextSession(ctx context.Context, year int, now time.Time) (Meeting, Session, error) {
	idx, err := c.Index(ctx, year)
	if err != nil {
		return Meeting{}, Session{}, err
	}

	var (
		bestMeeting Meeting
		bestSession Session
		bestStart   time.Time
		found       bool
	)
	for _, m := range idx.Meetings {
		for _, s := range m.Sessions {
			if s.Key == -1 {
				continue
			}
			end, err := s.EndUTC()
			if err != nil || end.Before(now) {
				continue
			}
			start, err := s.StartUTC()
			if err != nil {
				continue
			}
			if !found || start.Before(bestStart) {
				bestMeeting, bestSession, bestStart = m, s, start
				found = true
			}
		}
	}
	if !found {
		return Meeting{}, Session{}, fmt.Errorf("%w (no upcoming session in %d)", ErrSessionNotFound, year)
	}
	return bestMeeting, bestSession, nil
}

// SessionURL resolves the archive URL of a session's raw data directory.
func (c *Client) SessionURL(ctx context.Context, year, meetingKey, sessionKey int) (string, error) {
	idx, err := c.Index(ctx, year)
	if err != nil {
		return "", err
	}
	for _, m := range idx.Meetings {
		if m.Key != meetingKey {
			continue
		}
		for _, s := range m.Sessions {
			if s.Key == sessionKey && s.Path != "" {
				return c.baseURL + "/" + strings.Trim(s.Path, "/"), nil
			}
		}
	}
	return "", fmt.Errorf("%w (year %d, meeting %d, session %d)", ErrSessionNotFound, year, meetingKey, sessionKey)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
