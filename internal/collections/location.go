package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Location is one track-coordinate sample of one car.
type Location struct {
	MeetingKey   int       `bson:"meeting_key" json:"meeting_key"`
	SessionKey   int       `bson:"session_key" json:"session_key"`
	DriverNumber int       `bson:"driver_number" json:"driver_number"`
	Date         time.Time `bson:"date" json:"date"`
	X            *int      `bson:"x" json:"x"`
	Y            *int      `bson:"y" json:"y"`
	Z            *int      `bson:"z" json:"z"`
}

func (l Location) ID() string {
	return naturalKey(l.Date, l.DriverNumber)
}

type locationProcessor struct {
	meetingKey int
	sessionKey int
}

func newLocationProcessor(meetingKey, sessionKey int) *locationProcessor {
	return &locationProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *locationProcessor) Name() string           { return "location" }
func (p *locationProcessor) SourceTopics() []string { return []string{"Position.z"} }
func (p *locationProcessor) Stateful() bool         { return false }

func (p *locationProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, blockRaw := range mapValues(content["Position"]) {
		block, ok := asMap(blockRaw)
		if !ok {
			continue
		}
		timestamp, ok := toString(block["Timestamp"])
		if !ok {
			continue
		}
		date, err := feed.ParseUTC(timestamp)
		if err != nil {
			continue
		}
		entries, ok := asMap(block["Entries"])
		if !ok {
			continue
		}

		for _, numberKey := range sortedKeys(entries) {
			driverNumber, ok := toInt(numberKey)
			if !ok {
				continue
			}
			data, ok := asMap(entries[numberKey])
			if !ok {
				continue
			}

			doc := Location{
				MeetingKey:   p.meetingKey,
				SessionKey:   p.sessionKey,
				DriverNumber: driverNumber,
				Date:         date,
			}
			if x, ok := toInt(data["X"]); ok {
				doc.X = intPtr(x)
			}
			if y, ok := toInt(data["Y"]); ok {
				doc.Y = intPtr(y)
			}
			if z, ok := toInt(data["Z"]); ok {
				doc.Z = intPtr(z)
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
