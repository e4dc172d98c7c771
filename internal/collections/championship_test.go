package collections

import (
	"testing"
	"time"
)

func TestChampionshipDriversAccumulates(t *testing.T) {
	p := newChampionshipDriversProcessor(1219, 9161)
	tp := time.Date(2023, 9, 17, 14, 0, 0, 0, time.UTC)

	docs, err := p.ProcessMessage(newMsg("ChampionshipPrediction", map[string]any{
		"Drivers": map[string]any{
			"1": map[string]any{"CurrentPosition": 2.0, "CurrentPoints": 100.0},
		},
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	first := docs[0].(ChampionshipDriver)
	if first.PositionStart == nil || *first.PositionStart != 2 {
		t.Errorf("position_start = %v, want 2", first.PositionStart)
	}
	if first.PositionCurrent != nil {
		t.Errorf("position_current = %v, want nil before a prediction", *first.PositionCurrent)
	}

	// A later partial update carries only predicted fields; the document
	// keeps the session-start standing.
	docs, err = p.ProcessMessage(newMsg("ChampionshipPrediction", map[string]any{
		"Drivers": map[string]any{
			"1": map[string]any{"PredictedPosition": 1.0, "PredictedPoints": 125.5},
		},
	}, tp.Add(time.Minute)))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	merged := docs[0].(ChampionshipDriver)
	if merged.PositionStart == nil || *merged.PositionStart != 2 {
		t.Errorf("position_start = %v, want 2 after merge", merged.PositionStart)
	}
	if merged.PositionCurrent == nil || *merged.PositionCurrent != 1 {
		t.Errorf("position_current = %v, want 1", merged.PositionCurrent)
	}
	if merged.PointsStart == nil || *merged.PointsStart != 100.0 {
		t.Errorf("points_start = %v, want 100", merged.PointsStart)
	}
	if merged.PointsCurrent == nil || *merged.PointsCurrent != 125.5 {
		t.Errorf("points_current = %v, want 125.5", merged.PointsCurrent)
	}
	if merged.ID() != "9161_1" {
		t.Errorf("ID = %q, want 9161_1", merged.ID())
	}
}

func TestChampionshipDriversIgnoresPlaceholderPositions(t *testing.T) {
	p := newChampionshipDriversProcessor(1219, 9161)
	tp := time.Date(2023, 9, 17, 14, 0, 0, 0, time.UTC)

	docs, err := p.ProcessMessage(newMsg("ChampionshipPrediction", map[string]any{
		"Drivers": map[string]any{
			"1": map[string]any{"PredictedPosition": 0.0},
		},
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	doc := docs[0].(ChampionshipDriver)
	if doc.PositionCurrent != nil {
		t.Errorf("position_current = %v, want nil for placeholder 0", *doc.PositionCurrent)
	}
}

func TestChampionshipTeamsKeyedByName(t *testing.T) {
	p := newChampionshipTeamsProcessor(1219, 9161)
	tp := time.Date(2023, 9, 17, 14, 0, 0, 0, time.UTC)

	docs, err := p.ProcessMessage(newMsg("ChampionshipPrediction", map[string]any{
		"Teams": map[string]any{
			"Red Bull Racing": map[string]any{
				"TeamName":        "Red Bull Racing",
				"CurrentPosition": 1.0,
				"PredictedPoints": 860.0,
			},
		},
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	team := docs[0].(ChampionshipTeam)
	if team.TeamName != "Red Bull Racing" {
		t.Errorf("team_name = %q", team.TeamName)
	}
	if team.ID() != "9161_Red Bull Racing" {
		t.Errorf("ID = %q", team.ID())
	}
	if team.PositionStart == nil || *team.PositionStart != 1 {
		t.Errorf("position_start = %v, want 1", team.PositionStart)
	}
	if team.PointsCurrent == nil || *team.PointsCurrent != 860.0 {
		t.Errorf("points_current = %v, want 860", team.PointsCurrent)
	}

	// Messages without a Teams block are ignored.
	docs, err = p.ProcessMessage(newMsg("ChampionshipPrediction", map[string]any{
		"Drivers": map[string]any{},
	}, tp))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d docs without Teams block, want 0", len(docs))
	}
}
