package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Position is one classification snapshot of one driver.
type Position struct {
	MeetingKey   int       `bson:"meeting_key" json:"meeting_key"`
	SessionKey   int       `bson:"session_key" json:"session_key"`
	DriverNumber int       `bson:"driver_number" json:"driver_number"`
	Date         time.Time `bson:"date" json:"date"`
	Position     int       `bson:"position" json:"position"`
}

func (p Position) ID() string {
	return naturalKey(p.Date, p.DriverNumber)
}

type positionProcessor struct {
	meetingKey int
	sessionKey int
}

func newPositionProcessor(meetingKey, sessionKey int) *positionProcessor {
	return &positionProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *positionProcessor) Name() string           { return "position" }
func (p *positionProcessor) SourceTopics() []string { return []string{"TimingAppData"} }
func (p *positionProcessor) Stateful() bool         { return false }

func (p *positionProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}
	lines, ok := asMap(content["Lines"])
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, numberKey := range sortedKeys(lines) {
		driverNumber, ok := toInt(numberKey)
		if !ok {
			continue
		}
		data, ok := asMap(lines[numberKey])
		if !ok {
			continue
		}
		line, ok := toInt(data["Line"])
		if !ok {
			continue
		}

		docs = append(docs, Position{
			MeetingKey:   p.meetingKey,
			SessionKey:   p.sessionKey,
			DriverNumber: driverNumber,
			Date:         msg.Timepoint,
			Position:     line,
		})
	}
	return docs, nil
}
