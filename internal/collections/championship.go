package collections

import (
	"github.com/pitwall/pitwall/internal/feed"
)

// ChampionshipDriver is the live championship projection for one driver:
// standing at session start versus the standing the current classification
// predicts.
type ChampionshipDriver struct {
	MeetingKey      int      `bson:"meeting_key" json:"meeting_key"`
	SessionKey      int      `bson:"session_key" json:"session_key"`
	DriverNumber    int      `bson:"driver_number" json:"driver_number"`
	PositionStart   *int     `bson:"position_start" json:"position_start"`
	PositionCurrent *int     `bson:"position_current" json:"position_current"`
	PointsStart     *float64 `bson:"points_start" json:"points_start"`
	PointsCurrent   *float64 `bson:"points_current" json:"points_current"`
}

func (c ChampionshipDriver) ID() string {
	return naturalKey(c.SessionKey, c.DriverNumber)
}

// ChampionshipTeam is the live constructors' championship projection for one
// team.
type ChampionshipTeam struct {
	MeetingKey      int      `bson:"meeting_key" json:"meeting_key"`
	SessionKey      int      `bson:"session_key" json:"session_key"`
	TeamName        string   `bson:"team_name" json:"team_name"`
	PositionStart   *int     `bson:"position_start" json:"position_start"`
	PositionCurrent *int     `bson:"position_current" json:"position_current"`
	PointsStart     *float64 `bson:"points_start" json:"points_start"`
	PointsCurrent   *float64 `bson:"points_current" json:"points_current"`
}

func (c ChampionshipTeam) ID() string {
	return naturalKey(c.SessionKey, c.TeamName)
}

// ChampionshipPrediction updates are partial: a message carries only the
// fields that changed, so both processors accumulate per-key state and emit
// the merged projection on every update.
type championshipDriversProcessor struct {
	meetingKey int
	sessionKey int
	drivers    map[int]*ChampionshipDriver
}

func newChampionshipDriversProcessor(meetingKey, sessionKey int) *championshipDriversProcessor {
	return &championshipDriversProcessor{
		meetingKey: meetingKey,
		sessionKey: sessionKey,
		drivers:    make(map[int]*ChampionshipDriver),
	}
}

func (p *championshipDriversProcessor) Name() string           { return "championship_drivers" }
func (p *championshipDriversProcessor) SourceTopics() []string { return []string{"ChampionshipPrediction"} }
func (p *championshipDriversProcessor) Stateful() bool         { return true }

func (p *championshipDriversProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}
	drivers, ok := asMap(content["Drivers"])
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, key := range sortedKeys(drivers) {
		driverNumber, ok := toInt(key)
		if !ok {
			continue
		}
		data, ok := asMap(drivers[key])
		if !ok {
			continue
		}

		entry := p.drivers[driverNumber]
		if entry == nil {
			entry = &ChampionshipDriver{
				MeetingKey:   p.meetingKey,
				SessionKey:   p.sessionKey,
				DriverNumber: driverNumber,
			}
			p.drivers[driverNumber] = entry
		}
		applyChampionshipFields(data,
			&entry.PositionStart, &entry.PositionCurrent,
			&entry.PointsStart, &entry.PointsCurrent,
		)
		docs = append(docs, *entry)
	}
	return docs, nil
}

type championshipTeamsProcessor struct {
	meetingKey int
	sessionKey int
	teams      map[string]*ChampionshipTeam
}

func newChampionshipTeamsProcessor(meetingKey, sessionKey int) *championshipTeamsProcessor {
	return &championshipTeamsProcessor{
		meetingKey: meetingKey,
		sessionKey: sessionKey,
		teams:      make(map[string]*ChampionshipTeam),
	}
}

func (p *championshipTeamsProcessor) Name() string           { return "championship_teams" }
func (p *championshipTeamsProcessor) SourceTopics() []string { return []string{"ChampionshipPrediction"} }
func (p *championshipTeamsProcessor) Stateful() bool         { return true }

func (p *championshipTeamsProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}
	teams, ok := asMap(content["Teams"])
	if !ok {
		return nil, nil
	}

	var docs []Document
	for _, key := range sortedKeys(teams) {
		data, ok := asMap(teams[key])
		if !ok {
			continue
		}
		teamName, ok := toString(data["TeamName"])
		if !ok {
			continue
		}

		entry := p.teams[teamName]
		if entry == nil {
			entry = &ChampionshipTeam{
				MeetingKey: p.meetingKey,
				SessionKey: p.sessionKey,
				TeamName:   teamName,
			}
			p.teams[teamName] = entry
		}
		applyChampionshipFields(data,
			&entry.PositionStart, &entry.PositionCurrent,
			&entry.PointsStart, &entry.PointsCurrent,
		)
		docs = append(docs, *entry)
	}
	return docs, nil
}

// applyChampionshipFields merges one prediction update into accumulated
// state. Current* fields are the session-start standing, Predicted* the live
// projection; zero positions are placeholders and skipped.
func applyChampionshipFields(data map[string]any, positionStart, positionCurrent **int, pointsStart, pointsCurrent **float64) {
	if v, ok := toInt(data["CurrentPosition"]); ok && v > 0 {
		*positionStart = intPtr(v)
	}
	if v, ok := toInt(data["PredictedPosition"]); ok && v > 0 {
		*positionCurrent = intPtr(v)
	}
	if v, ok := toFloat(data["CurrentPoints"]); ok {
		*pointsStart = floatPtr(v)
	}
	if v, ok := toFloat(data["PredictedPoints"]); ok {
		*pointsCurrent = floatPtr(v)
	}
}
