package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Pit is one pit lane visit.
type Pit struct {
	MeetingKey   int       `bson:"meeting_key" json:"meeting_key"`
	SessionKey   int       `bson:"session_key" json:"session_key"`
	DriverNumber int       `bson:"driver_number" json:"driver_number"`
	Date         time.Time `bson:"date" json:"date"`
	PitDuration  *float64  `bson:"pit_duration" json:"pit_duration"`
	LapNumber    int       `bson:"lap_number" json:"lap_number"`
}

func (p Pit) ID() string {
	return naturalKey(p.Date, p.DriverNumber)
}

type pitProcessor struct {
	meetingKey int
	sessionKey int
}

func newPitProcessor(meetingKey, sessionKey int) *pitProcessor {
	return &pitProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *pitProcessor) Name() string           { return "pit" }
func (p *pitProcessor) SourceTopics() []string { return []string{"PitLaneTimeCollection"} }
func (p *pitProcessor) Stateful() bool         { return false }

func (p *pitProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}
	pitTimes, ok := asMap(content["PitTimes"])
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, numberKey := range sortedKeys(pitTimes) {
		driverNumber, ok := toInt(numberKey)
		if !ok {
			continue
		}
		data, ok := asMap(pitTimes[numberKey])
		if !ok {
			continue
		}
		lapNumber, ok := toInt(data["Lap"])
		if !ok {
			continue
		}

		doc := Pit{
			MeetingKey:   p.meetingKey,
			SessionKey:   p.sessionKey,
			DriverNumber: driverNumber,
			Date:         msg.Timepoint,
			LapNumber:    lapNumber,
		}
		if duration, ok := toFloat(data["Duration"]); ok {
			doc.PitDuration = floatPtr(duration)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
