package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
	"github.com/pitwall/pitwall/internal/schedule"
)

// TeamRadio is one driver/pit-wall radio exchange recording.
type TeamRadio struct {
	MeetingKey   int        `bson:"meeting_key" json:"meeting_key"`
	SessionKey   int        `bson:"session_key" json:"session_key"`
	DriverNumber int        `bson:"driver_number" json:"driver_number"`
	Date         *time.Time `bson:"date" json:"date"`
	RecordingURL string     `bson:"recording_url" json:"recording_url"`
}

func (t TeamRadio) ID() string {
	return naturalKey(t.Date, t.DriverNumber)
}

// teamRadioProcessor needs the session path from SessionInfo before capture
// paths can be resolved into full URLs, so it is stateful.
type teamRadioProcessor struct {
	meetingKey  int
	sessionKey  int
	sessionPath string
}

func newTeamRadioProcessor(meetingKey, sessionKey int) *teamRadioProcessor {
	return &teamRadioProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *teamRadioProcessor) Name() string { return "team_radio" }
func (p *teamRadioProcessor) SourceTopics() []string {
	return []string{"SessionInfo", "TeamRadio"}
}
func (p *teamRadioProcessor) Stateful() bool { return true }

func (p *teamRadioProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	if msg.Topic == "SessionInfo" {
		if path, ok := toString(content["Path"]); ok {
			p.sessionPath = path
		}
		return nil, nil
	}

	if p.sessionPath == "" {
		return nil, nil
	}

	var docs []Document
	for _, raw := range mapValues(content["Captures"]) {
		capture, ok := asMap(raw)
		if !ok {
			continue
		}
		driverNumber, ok := toInt(capture["RacingNumber"])
		if !ok {
			continue
		}
		path, ok := toString(capture["Path"])
		if !ok {
			continue
		}

		doc := TeamRadio{
			MeetingKey:   p.meetingKey,
			SessionKey:   p.sessionKey,
			DriverNumber: driverNumber,
			RecordingURL: schedule.DefaultBaseURL + "/" + p.sessionPath + path,
		}
		if utc, ok := toString(capture["Utc"]); ok {
			if date, err := feed.ParseUTC(utc); err == nil {
				doc.Date = &date
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
