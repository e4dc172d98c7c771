package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Session describes one timed activity period, derived from SessionInfo.
type Session struct {
	MeetingKey       int        `bson:"meeting_key" json:"meeting_key"`
	SessionKey       int        `bson:"session_key" json:"session_key"`
	Location         *string    `bson:"location" json:"location"`
	DateStart        *time.Time `bson:"date_start" json:"date_start"`
	DateEnd          *time.Time `bson:"date_end" json:"date_end"`
	SessionType      *string    `bson:"session_type" json:"session_type"`
	SessionName      *string    `bson:"session_name" json:"session_name"`
	CountryKey       *int       `bson:"country_key" json:"country_key"`
	CountryCode      *string    `bson:"country_code" json:"country_code"`
	CountryName      *string    `bson:"country_name" json:"country_name"`
	CircuitKey       *int       `bson:"circuit_key" json:"circuit_key"`
	CircuitShortName *string    `bson:"circuit_short_name" json:"circuit_short_name"`
	GmtOffset        *string    `bson:"gmt_offset" json:"gmt_offset"`
	Year             *int       `bson:"year" json:"year"`
}

func (s Session) ID() string {
	return naturalKey(s.SessionKey)
}

type sessionsProcessor struct {
	meetingKey int
	sessionKey int
}

func newSessionsProcessor(meetingKey, sessionKey int) *sessionsProcessor {
	return &sessionsProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *sessionsProcessor) Name() string           { return "sessions" }
func (p *sessionsProcessor) SourceTopics() []string { return []string{"SessionInfo"} }
func (p *sessionsProcessor) Stateful() bool         { return false }

func (p *sessionsProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	doc := Session{
		MeetingKey: p.meetingKey,
		SessionKey: p.sessionKey,
	}

	gmtOffset, _ := toString(content["GmtOffset"])
	if gmtOffset != "" {
		doc.GmtOffset = &gmtOffset
	}
	if start := parseLocalDate(content["StartDate"], gmtOffset); start != nil {
		doc.DateStart = start
		doc.Year = intPtr(start.Year())
	}
	if end := parseLocalDate(content["EndDate"], gmtOffset); end != nil {
		doc.DateEnd = end
	}
	if v, ok := toString(content["Type"]); ok {
		doc.SessionType = &v
	}
	if v, ok := toString(content["Name"]); ok {
		doc.SessionName = &v
	}

	meeting, _ := asMap(content["Meeting"])
	if v, ok := toString(meeting["Location"]); ok {
		doc.Location = &v
	}
	country, _ := asMap(meeting["Country"])
	if v, ok := toInt(country["Key"]); ok {
		doc.CountryKey = intPtr(v)
	}
	if v, ok := toString(country["Code"]); ok {
		doc.CountryCode = &v
	}
	if v, ok := toString(country["Name"]); ok {
		doc.CountryName = &v
	}
	circuit, _ := asMap(meeting["Circuit"])
	if v, ok := toInt(circuit["Key"]); ok {
		doc.CircuitKey = intPtr(v)
	}
	if v, ok := toString(circuit["ShortName"]); ok {
		doc.CircuitShortName = &v
	}

	return []Document{doc}, nil
}

// parseLocalDate converts a local feed date plus GMT offset into UTC.
func parseLocalDate(v any, gmtOffset string) *time.Time {
	s, ok := toString(v)
	if !ok {
		return nil
	}
	local, err := feed.ParseUTC(s)
	if err != nil {
		return nil
	}
	if gmtOffset != "" {
		if offset, err := parseGmtOffsetDuration(gmtOffset); err == nil {
			local = local.Add(-offset)
		}
	}
	return &local
}

func parseGmtOffsetDuration(offset string) (time.Duration, error) {
	sign := time.Duration(1)
	if len(offset) > 0 && offset[0] == '-' {
		sign = -1
		offset = offset[1:]
	}
	d, err := feed.ParseSessionTime(offset)
	if err != nil {
		return 0, err
	}
	return sign * d, nil
}
