package collections

import (
	"strings"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Interval is one timing-delta snapshot of one driver during a race.
// GapToLeader and IntervalAhead are seconds (float64) in the common case, but
// keep the raw string for lapped cars ("+1 LAP").
type Interval struct {
	MeetingKey    int       `bson:"meeting_key" json:"meeting_key"`
	SessionKey    int       `bson:"session_key" json:"session_key"`
	DriverNumber  int       `bson:"driver_number" json:"driver_number"`
	GapToLeader   any       `bson:"gap_to_leader" json:"gap_to_leader"`
	IntervalAhead any       `bson:"interval" json:"interval"`
	Date          time.Time `bson:"date" json:"date"`
}

func (i Interval) ID() string {
	return naturalKey(i.Date, i.DriverNumber)
}

// parseTimeDelta normalizes feed gap values: the leader reports "LAP n"
// (gap 0), lapped cars keep their "+1 LAP" label, everything else becomes
// seconds.
func parseTimeDelta(v any) any {
	if v == nil {
		return nil
	}
	s, ok := toString(v)
	if !ok {
		return v
	}

	if strings.HasPrefix(strings.ToUpper(s), "LAP") {
		return 0.0
	}
	if strings.HasPrefix(s, "+") {
		if strings.Contains(s, "LAP") {
			return s
		}
		rest := s[1:]
		if strings.Contains(rest, ":") {
			if d, err := feed.ParseSessionTime(rest); err == nil {
				return d.Seconds()
			}
			return s
		}
		if f, ok := toFloat(rest); ok {
			return f
		}
	}
	return v
}

type intervalsProcessor struct {
	meetingKey int
	sessionKey int
}

func newIntervalsProcessor(meetingKey, sessionKey int) *intervalsProcessor {
	return &intervalsProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *intervalsProcessor) Name() string           { return "intervals" }
func (p *intervalsProcessor) SourceTopics() []string { return []string{"DriverRaceInfo"} }
func (p *intervalsProcessor) Stateful() bool         { return false }

func (p *intervalsProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, numberKey := range sortedKeys(content) {
		driverNumber, ok := toInt(numberKey)
		if !ok {
			continue
		}
		data, ok := asMap(content[numberKey])
		if !ok {
			continue
		}
		if data["Gap"] == nil && data["Interval"] == nil {
			continue
		}

		docs = append(docs, Interval{
			MeetingKey:    p.meetingKey,
			SessionKey:    p.sessionKey,
			DriverNumber:  driverNumber,
			GapToLeader:   parseTimeDelta(data["Gap"]),
			IntervalAhead: parseTimeDelta(data["Interval"]),
			Date:          msg.Timepoint,
		})
	}
	return docs, nil
}
