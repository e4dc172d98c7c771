package collections

import (
	"github.com/pitwall/pitwall/internal/feed"
)

// Driver is one entry of the session's driver roster.
type Driver struct {
	MeetingKey    int     `bson:"meeting_key" json:"meeting_key"`
	SessionKey    int     `bson:"session_key" json:"session_key"`
	DriverNumber  int     `bson:"driver_number" json:"driver_number"`
	BroadcastName *string `bson:"broadcast_name" json:"broadcast_name"`
	FullName      *string `bson:"full_name" json:"full_name"`
	NameAcronym   *string `bson:"name_acronym" json:"name_acronym"`
	TeamName      *string `bson:"team_name" json:"team_name"`
	TeamColour    *string `bson:"team_colour" json:"team_colour"`
	FirstName     *string `bson:"first_name" json:"first_name"`
	LastName      *string `bson:"last_name" json:"last_name"`
	HeadshotURL   *string `bson:"headshot_url" json:"headshot_url"`
	CountryCode   *string `bson:"country_code" json:"country_code"`
}

func (d Driver) ID() string {
	return naturalKey(d.SessionKey, d.DriverNumber)
}

// Renaming of keys, from topic to collection.
var driverKeyMapping = map[string]func(*Driver, string){
	"BroadcastName": func(d *Driver, v string) { d.BroadcastName = &v },
	"CountryCode":   func(d *Driver, v string) { d.CountryCode = &v },
	"FirstName":     func(d *Driver, v string) { d.FirstName = &v },
	"FullName":      func(d *Driver, v string) { d.FullName = &v },
	"HeadshotUrl":   func(d *Driver, v string) { d.HeadshotURL = &v },
	"LastName":      func(d *Driver, v string) { d.LastName = &v },
	"TeamColour":    func(d *Driver, v string) { d.TeamColour = &v },
	"TeamName":      func(d *Driver, v string) { d.TeamName = &v },
	"Tla":           func(d *Driver, v string) { d.NameAcronym = &v },
}

// driversProcessor accumulates roster state across DriverList messages and
// re-emits a driver whenever one of its fields changes.
type driversProcessor struct {
	meetingKey int
	sessionKey int
	drivers    map[int]*Driver
}

func newDriversProcessor(meetingKey, sessionKey int) *driversProcessor {
	return &driversProcessor{
		meetingKey: meetingKey,
		sessionKey: sessionKey,
		drivers:    make(map[int]*Driver),
	}
}

func (p *driversProcessor) Name() string           { return "drivers" }
func (p *driversProcessor) SourceTopics() []string { return []string{"DriverList"} }
func (p *driversProcessor) Stateful() bool         { return true }

func (p *driversProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	updated := make(map[int]bool)
	for numberKey, raw := range content {
		driverNumber, ok := toInt(numberKey)
		if !ok {
			continue
		}
		data, ok := asMap(raw)
		if !ok {
			continue
		}

		driver, exists := p.drivers[driverNumber]
		if !exists {
			driver = &Driver{
				MeetingKey:   p.meetingKey,
				SessionKey:   p.sessionKey,
				DriverNumber: driverNumber,
			}
			p.drivers[driverNumber] = driver
			updated[driverNumber] = true
		}

		for topicKey, set := range driverKeyMapping {
			v, ok := toString(data[topicKey])
			if !ok {
				continue
			}
			before := *driver
			set(driver, v)
			if !equalDriver(before, *driver) {
				updated[driverNumber] = true
			}
		}
	}

	var docs []Document
	for number := range updated {
		docs = append(docs, *p.drivers[number])
	}
	return docs, nil
}

func equalDriver(a, b Driver) bool {
	return strEq(a.BroadcastName, b.BroadcastName) &&
		strEq(a.FullName, b.FullName) &&
		strEq(a.NameAcronym, b.NameAcronym) &&
		strEq(a.TeamName, b.TeamName) &&
		strEq(a.TeamColour, b.TeamColour) &&
		strEq(a.FirstName, b.FirstName) &&
		strEq(a.LastName, b.LastName) &&
		strEq(a.HeadshotURL, b.HeadshotURL) &&
		strEq(a.CountryCode, b.CountryCode)
}

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
