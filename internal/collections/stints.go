package collections

import (
	"sort"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Stint is a continuous run on one tyre set.
type Stint struct {
	MeetingKey     int     `bson:"meeting_key" json:"meeting_key"`
	SessionKey     int     `bson:"session_key" json:"session_key"`
	StintNumber    int     `bson:"stint_number" json:"stint_number"`
	DriverNumber   int     `bson:"driver_number" json:"driver_number"`
	LapStart       *int    `bson:"lap_start" json:"lap_start"`
	LapEnd         *int    `bson:"lap_end" json:"lap_end"`
	Compound       *string `bson:"compound" json:"compound"`
	TyreAgeAtStart *int    `bson:"tyre_age_at_start" json:"tyre_age_at_start"`

	// Bookkeeping only, not part of the persisted document identity.
	dateStartLastLap *time.Time
}

func (s Stint) ID() string {
	return naturalKey(s.SessionKey, s.StintNumber, s.DriverNumber)
}

// stintsProcessor correlates tyre data (TimingAppData) with lap counters
// (TimingData) to derive stint boundaries. Order dependent: a stint's lap
// range is only correct when messages arrive chronologically.
type stintsProcessor struct {
	meetingKey int
	sessionKey int
	stints     map[int]map[int]*Stint
	updated    map[*Stint]bool
}

func newStintsProcessor(meetingKey, sessionKey int) *stintsProcessor {
	return &stintsProcessor{
		meetingKey: meetingKey,
		sessionKey: sessionKey,
		stints:     make(map[int]map[int]*Stint),
		updated:    make(map[*Stint]bool),
	}
}

func (p *stintsProcessor) Name() string           { return "stints" }
func (p *stintsProcessor) SourceTopics() []string { return []string{"TimingAppData", "TimingData"} }
func (p *stintsProcessor) Stateful() bool         { return true }

func (p *stintsProcessor) lastStint(driverNumber int) *Stint {
	var last *Stint
	for _, stint := range p.stints[driverNumber] {
		if last == nil || stint.StintNumber > last.StintNumber {
			last = stint
		}
	}
	return last
}

func (p *stintsProcessor) addStint(driverNumber, stintNumber int, timepoint time.Time) {
	last := p.lastStint(driverNumber)

	// Lap information sometimes arrives just before the stint change it
	// belongs to; detect that with timepoints and take the lap back.
	if last != nil && last.dateStartLastLap != nil && last.LapEnd != nil &&
		timepoint.Sub(*last.dateStartLastLap) < 10*time.Second {
		*last.LapEnd--
		p.updated[last] = true
	}

	stint := &Stint{
		MeetingKey:   p.meetingKey,
		SessionKey:   p.sessionKey,
		DriverNumber: driverNumber,
		StintNumber:  stintNumber,
	}
	if last != nil && last.LapEnd != nil {
		stint.LapStart = intPtr(*last.LapEnd + 1)
		stint.LapEnd = intPtr(*stint.LapStart)
	}

	if p.stints[driverNumber] == nil {
		p.stints[driverNumber] = make(map[int]*Stint)
	}
	p.stints[driverNumber][stintNumber] = stint
	p.updated[stint] = true
}

func (p *stintsProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}
	lines, ok := asMap(content["Lines"])
	if !ok {
		return nil, nil
	}

	switch msg.Topic {
	case "TimingAppData":
		for numberKey, raw := range lines {
			driverNumber, ok := toInt(numberKey)
			if !ok {
				continue
			}
			data, ok := asMap(raw)
			if !ok {
				continue
			}
			p.processTyres(driverNumber, data, msg.Timepoint)
		}
	case "TimingData":
		for numberKey, raw := range lines {
			driverNumber, ok := toInt(numberKey)
			if !ok {
				continue
			}
			data, ok := asMap(raw)
			if !ok {
				continue
			}
			p.processLapCount(driverNumber, data, msg.Timepoint)
		}
	}

	return p.flushUpdated(), nil
}

func (p *stintsProcessor) processTyres(driverNumber int, data map[string]any, timepoint time.Time) {
	stintsRaw := data["Stints"]
	if stintsRaw == nil {
		return
	}

	type numbered struct {
		number int
		data   any
	}
	var entries []numbered

	switch v := stintsRaw.(type) {
	case []any:
		// A full snapshot: stint numbers are positional.
		for i, e := range v {
			entries = append(entries, numbered{number: i, data: e})
		}
	case map[string]any:
		for _, k := range sortedKeys(v) {
			n, ok := toInt(k)
			if !ok {
				continue
			}
			entries = append(entries, numbered{number: n, data: v[k]})
		}
	default:
		return
	}

	for _, e := range entries {
		stintNumber := e.number + 1

		if p.stints[driverNumber][stintNumber] == nil {
			p.addStint(driverNumber, stintNumber, timepoint)
		}
		stint := p.stints[driverNumber][stintNumber]

		stintData, ok := asMap(e.data)
		if !ok {
			continue
		}

		if compound, ok := toString(stintData["Compound"]); ok {
			if stint.Compound == nil || *stint.Compound != compound {
				stint.Compound = &compound
				p.updated[stint] = true
			}
		}
		if age, ok := toInt(stintData["TotalLaps"]); ok && stint.TyreAgeAtStart == nil {
			stint.TyreAgeAtStart = intPtr(age)
			p.updated[stint] = true
		}
	}
}

func (p *stintsProcessor) processLapCount(driverNumber int, data map[string]any, timepoint time.Time) {
	if len(p.stints[driverNumber]) == 0 {
		p.addStint(driverNumber, 1, timepoint)
	}

	lapCount, ok := toInt(data["NumberOfLaps"])
	if !ok {
		return
	}

	stint := p.lastStint(driverNumber)
	if stint == nil {
		return
	}
	if stint.LapStart == nil {
		stint.LapStart = intPtr(lapCount)
		p.updated[stint] = true
	}
	if stint.LapEnd == nil || *stint.LapEnd != lapCount {
		stint.LapEnd = intPtr(lapCount)
		p.updated[stint] = true
	}
	t := timepoint
	stint.dateStartLastLap = &t
}

func (p *stintsProcessor) flushUpdated() []Document {
	if len(p.updated) == 0 {
		return nil
	}
	stints := make([]*Stint, 0, len(p.updated))
	for stint := range p.updated {
		stints = append(stints, stint)
	}
	sort.Slice(stints, func(i, j int) bool {
		if stints[i].DriverNumber != stints[j].DriverNumber {
			return stints[i].DriverNumber < stints[j].DriverNumber
		}
		return stints[i].StintNumber < stints[j].StintNumber
	})

	docs := make([]Document, 0, len(stints))
	for _, stint := range stints {
		docs = append(docs, *stint)
	}
	p.updated = make(map[*Stint]bool)
	return docs
}
