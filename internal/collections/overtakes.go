package collections

import (
	"sort"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Overtake is one on-track pass, derived from a DriverRaceInfo update in
// which exactly one driver carries OvertakeState 2 (the overtaker) and the
// drivers that lost out report their new positions.
type Overtake struct {
	MeetingKey             int       `bson:"meeting_key" json:"meeting_key"`
	SessionKey             int       `bson:"session_key" json:"session_key"`
	OvertakingDriverNumber int       `bson:"overtaking_driver_number" json:"overtaking_driver_number"`
	OvertakenDriverNumber  int       `bson:"overtaken_driver_number" json:"overtaken_driver_number"`
	Date                   time.Time `bson:"date" json:"date"`
	Position               int       `bson:"position" json:"position"`
}

func (o Overtake) ID() string {
	return naturalKey(o.Date, o.OvertakingDriverNumber, o.OvertakenDriverNumber)
}

type overtakesProcessor struct {
	meetingKey int
	sessionKey int
}

func newOvertakesProcessor(meetingKey, sessionKey int) *overtakesProcessor {
	return &overtakesProcessor{meetingKey: meetingKey, sessionKey: sessionKey}
}

func (p *overtakesProcessor) Name() string           { return "overtakes" }
func (p *overtakesProcessor) SourceTopics() []string { return []string{"DriverRaceInfo"} }
func (p *overtakesProcessor) Stateful() bool         { return false }

func (p *overtakesProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}

	overtaking, ok := overtakingDriver(content)
	if !ok {
		return nil, nil
	}

	type overtaken struct {
		position     int
		driverNumber int
	}
	var passed []overtaken
	for _, key := range sortedKeys(content) {
		data, ok := asMap(content[key])
		if !ok {
			continue
		}
		if state, ok := toInt(data["OvertakeState"]); ok && state == 2 {
			continue
		}
		position, ok := toInt(data["Position"])
		if !ok {
			continue
		}
		driverNumber, ok := toInt(key)
		if !ok {
			continue
		}
		passed = append(passed, overtaken{position: position, driverNumber: driverNumber})
	}
	if len(passed) == 0 {
		return nil, nil
	}

	// Multi-place passes emit one document per overtaken driver, furthest
	// back first.
	sort.Slice(passed, func(i, j int) bool {
		if passed[i].position != passed[j].position {
			return passed[i].position > passed[j].position
		}
		return passed[i].driverNumber > passed[j].driverNumber
	})

	docs := make([]Document, 0, len(passed))
	for _, o := range passed {
		docs = append(docs, Overtake{
			MeetingKey:             p.meetingKey,
			SessionKey:             p.sessionKey,
			OvertakingDriverNumber: overtaking,
			OvertakenDriverNumber:  o.driverNumber,
			Date:                   msg.Timepoint,
			// The reported position is where the overtaken driver ended up;
			// the pass happened one place ahead.
			Position: o.position - 1,
		})
	}
	return docs, nil
}

func overtakingDriver(content map[string]any) (int, bool) {
	for _, key := range sortedKeys(content) {
		data, ok := asMap(content[key])
		if !ok {
			continue
		}
		if state, ok := toInt(data["OvertakeState"]); !ok || state != 2 {
			continue
		}
		if driverNumber, ok := toInt(key); ok {
			return driverNumber, true
		}
	}
	return 0, false
}
