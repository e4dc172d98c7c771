package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Meeting describes one race weekend, derived from SessionInfo.
type Meeting struct {
	MeetingKey          int        `bson:"meeting_key" json:"meeting_key"`
	CircuitKey          *int       `bson:"circuit_key" json:"circuit_key"`
	CircuitShortName    *string    `bson:"circuit_short_name" json:"circuit_short_name"`
	MeetingCode         *string    `bson:"meeting_code" json:"meeting_code"`
	Location            *string    `bson:"location" json:"location"`
	CountryKey          *int       `bson:"country_key" json:"country_key"`
	CountryCode         *string    `bson:"country_code" json:"country_code"`
	CountryName         *string    `bson:"country_name" json:"country_name"`
	MeetingName         *string    `bson:"meeting_name" json:"meeting_name"`
	MeetingOfficialName *string    `bson:"meeting_official_name" json:"meeting_official_name"`
	GmtOffset           *string    `bson:"gmt_offset" json:"gmt_offset"`
	DateStart           *time.Time `bson:"date_start" json:"date_start"`
	Year                *int       `bson:"year" json:"year"`
}

// Meetings are keyed by start date; the first session of the weekend wins at
// query time.
func (m Meeting) ID() string {
	return naturalKey(m.DateStart)
}

type meetingsProcessor struct {
	meetingKey int
	sessionKey int
}

func newMeetingsProcessor(meetingKey, sessionKey int) *meetingsProcessor {
	return &meetingsProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *meetingsProcessor) Name() string           { return "meetings" }
func (p *meetingsProcessor) SourceTopics() []string { return []string{"SessionInfo"} }
func (p *meetingsProcessor) Stateful() bool         { return false }

func (p *meetingsProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	doc := Meeting{MeetingKey: p.meetingKey}

	gmtOffset, _ := toString(content["GmtOffset"])
	if gmtOffset != "" {
		doc.GmtOffset = &gmtOffset
	}
	if start := parseLocalDate(content["StartDate"], gmtOffset); start != nil {
		doc.DateStart = start
		doc.Year = intPtr(start.Year())
	}

	meeting, _ := asMap(content["Meeting"])
	if v, ok := toString(meeting["Location"]); ok {
		doc.Location = &v
	}
	if v, ok := toString(meeting["Name"]); ok {
		doc.MeetingName = &v
	}
	if v, ok := toString(meeting["OfficialName"]); ok {
		doc.MeetingOfficialName = &v
	}
	country, _ := asMap(meeting["Country"])
	if v, ok := toInt(country["Key"]); ok {
		doc.CountryKey = intPtr(v)
	}
	if v, ok := toString(country["Code"]); ok {
		doc.CountryCode = &v
		doc.MeetingCode = &v
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
