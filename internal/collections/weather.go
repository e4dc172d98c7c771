package collections

import (
	"fmt"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Weather is one trackside weather sample.
type Weather struct {
	MeetingKey       int       `bson:"meeting_key" json:"meeting_key"`
	SessionKey       int       `bson:"session_key" json:"session_key"`
	Date             time.Time `bson:"date" json:"date"`
	AirTemperature   float64   `bson:"air_temperature" json:"air_temperature"`
	Humidity         float64   `bson:"humidity" json:"humidity"`
	Pressure         float64   `bson:"pressure" json:"pressure"`
	Rainfall         int       `bson:"rainfall" json:"rainfall"`
	TrackTemperature float64   `bson:"track_temperature" json:"track_temperature"`
	WindDirection    int       `bson:"wind_direction" json:"wind_direction"`
	WindSpeed        float64   `bson:"wind_speed" json:"wind_speed"`
}

func (w Weather) ID() string {
	return naturalKey(w.Date)
}

type weatherProcessor struct {
	meetingKey int
	sessionKey int
}

func newWeatherProcessor(meetingKey, sessionKey int) *weatherProcessor {
	return &weatherProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *weatherProcessor) Name() string           { return "weather" }
func (p *weatherProcessor) SourceTopics() []string { return []string{"WeatherData"} }
func (p *weatherProcessor) Stateful() bool         { return false }

func (p *weatherProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	doc := Weather{
		MeetingKey: p.meetingKey,
		SessionKey: p.sessionKey,
		Date:       msg.Timepoint,
	}

	fields := []struct {
		key   string
		float *float64
		int_  *int
	}{
		{key: "AirTemp", float: &doc.AirTemperature},
		{key: "Humidity", float: &doc.Humidity},
		{key: "Pressure", float: &doc.Pressure},
		{key: "Rainfall", int_: &doc.Rainfall},
		{key: "TrackTemp", float: &doc.TrackTemperature},
		{key: "WindDirection", int_: &doc.WindDirection},
		{key: "WindSpeed", float: &doc.WindSpeed},
	}
	for _, f := range fields {
		if f.float != nil {
			v, ok := toFloat(content[f.key])
			if !ok {
				return nil, fmt.Errorf("weather message missing %s", f.key)
			}
			*f.float = v
		} else {
			v, ok := toInt(content[f.key])
			if !ok {
				return nil, fmt.Errorf("weather message missing %s", f.key)
			}
			*f.int_ = v
		}
	}

	return []Document{doc}, nil
}
