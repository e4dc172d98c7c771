package collections

import (
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// CarData is one telemetry sample of one car.
type CarData struct {
	MeetingKey   int       `bson:"meeting_key" json:"meeting_key"`
	SessionKey   int       `bson:"session_key" json:"session_key"`
	DriverNumber int       `bson:"driver_number" json:"driver_number"`
	Date         time.Time `bson:"date" json:"date"`
	RPM          *int      `bson:"rpm" json:"rpm"`
	Speed        *int      `bson:"speed" json:"speed"`
	NGear        *int      `bson:"n_gear" json:"n_gear"`
	Throttle     *int      `bson:"throttle" json:"throttle"`
	Brake        *int      `bson:"brake" json:"brake"`
	DRS          *int      `bson:"drs" json:"drs"`
}

func (c CarData) ID() string {
	return naturalKey(c.Date, c.DriverNumber)
}

// Telemetry channel numbers on the wire.
const (
	channelRPM      = "0"
	channelSpeed    = "2"
	channelGear     = "3"
	channelThrottle = "4"
	channelBrake    = "5"
	channelDRS      = "45"
)

type carDataProcessor struct {
	meetingKey int
	sessionKey int
}

func newCarDataProcessor(meetingKey, sessionKey int) *carDataProcessor {
	return &carDataProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *carDataProcessor) Name() string           { return "car_data" }
func (p *carDataProcessor) SourceTopics() []string { return []string{"CarData.z"} }
func (p *carDataProcessor) Stateful() bool         { return false }

func (p *carDataProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, entryRaw := range mapValues(content["Entries"]) {
		entry, ok := asMap(entryRaw)
		if !ok {
			continue
		}
		utc, ok := toString(entry["Utc"])
		if !ok {
			continue
		}
		date, err := feed.ParseUTC(utc)
		if err != nil {
			continue
		}
		cars, ok := asMap(entry["Cars"])
		if !ok {
			continue
		}

		for _, numberKey := range sortedKeys(cars) {
			driverNumber, ok := toInt(numberKey)
			if !ok {
				continue
			}
			car, ok := asMap(cars[numberKey])
			if !ok {
				continue
			}
			channels, ok := asMap(car["Channels"])
			if !ok {
				continue
			}

			docs = append(docs, CarData{
				MeetingKey:   p.meetingKey,
				SessionKey:   p.sessionKey,
				DriverNumber: driverNumber,
				Date:         date,
				RPM:          channelInt(channels, channelRPM),
				Speed:        channelInt(channels, channelSpeed),
				NGear:        channelInt(channels, channelGear),
				Throttle:     channelInt(channels, channelThrottle),
				Brake:        channelInt(channels, channelBrake),
				DRS:          channelInt(channels, channelDRS),
			})
		}
	}
	return docs, nil
}

func channelInt(channels map[string]any, key string) *int {
	if v, ok := toInt(channels[key]); ok {
		return intPtr(v)
	}
	return nil
}
