package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// RaceControl is one event issued by race control (flags, safety car,
// penalties, track status).
type RaceControl struct {
	MeetingKey   int        `bson:"meeting_key" json:"meeting_key"`
	SessionKey   int        `bson:"session_key" json:"session_key"`
	Date         *time.Time `bson:"date" json:"date"`
	DriverNumber *int       `bson:"driver_number" json:"driver_number"`
	LapNumber    *int       `bson:"lap_number" json:"lap_number"`
	Category     *string    `bson:"category" json:"category"`
	Flag         *string    `bson:"flag" json:"flag"`
	Scope        *string    `bson:"scope" json:"scope"`
	Sector       *int       `bson:"sector" json:"sector"`
	Message      *string    `bson:"message" json:"message"`
}

func (r RaceControl) ID() string {
	return naturalKey(r.Date, r.DriverNumber, r.LapNumber, strPart(r.Category), strPart(r.Flag), strPart(r.Scope), r.Sector)
}

func strPart(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

type raceControlProcessor struct {
	meetingKey int
	sessionKey int
}

func newRaceControlProcessor(meetingKey, sessionKey int) *raceControlProcessor {
	return &raceControlProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *raceControlProcessor) Name() string           { return "race_control" }
func (p *raceControlProcessor) SourceTopics() []string { return []string{"RaceControlMessages"} }
func (p *raceControlProcessor) Stateful() bool         { return false }

func (p *raceControlProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, raw := range mapValues(content["Messages"]) {
		data, ok := asMap(raw)
		if !ok {
			continue
		}

		doc := RaceControl{
			MeetingKey: p.meetingKey,
			SessionKey: p.sessionKey,
		}

		if utc, ok := toString(data["Utc"]); ok {
			if date, err := feed.ParseUTC(utc); err == nil {
				doc.Date = &date
			}
		}
		if n, ok := toInt(data["RacingNumber"]); ok {
			doc.DriverNumber = intPtr(n)
		}
		if lap, ok := toInt(data["Lap"]); ok {
			doc.LapNumber = intPtr(lap)
		}
		if v, ok := toString(data["Category"]); ok {
			doc.Category = &v
		}
		if v, ok := toString(data["Flag"]); ok {
			doc.Flag = &v
		}
		if v, ok := toString(data["Scope"]); ok {
			doc.Scope = &v
		}
		if sector, ok := toInt(data["Sector"]); ok {
			doc.Sector = intPtr(sector)
		}
		if v, ok := toString(data["Message"]); ok {
			doc.Message = &v
		}

		docs = append(docs, doc)
	}
	return docs, nil
}
