// Package collections derives normalized documents from raw topic messages.
//
// Each collection has exactly one processor. Processors are registered in an
// explicit registry resolved at startup; stateful processors accumulate
// per-run state and are constructed fresh for every ingestion run, so no
// state ever outlives a run or crosses sessions.
package collections

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Document is one normalized, upsertable record. ID returns the deterministic
// natural key used as the document store's _id: re-deriving the same message
// sequence always yields the same ID and content.
type Document interface {
	ID() string
}

// Processor consumes messages of its source topics and emits zero or more
// documents. Stateful processors require strictly ordered delivery within
// their topics; the orchestrator consults Stateful to pick a delivery mode.
type Processor interface {
	Name() string
	SourceTopics() []string
	Stateful() bool
	ProcessMessage(msg feed.Message) ([]Document, error)
}

// Factory builds a fresh processor with its own state for one ingestion run.
type Factory func(meetingKey, sessionKey int) Processor

// Registry maps collection names to processor factories. The set is fixed at
// build time; Register is only called during construction.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns the registry of all known collections.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.register("car_data", func(m, s int) Processor { return newCarDataProcessor(m, s) })
	r.register("championship_drivers", func(m, s int) Processor { return newChampionshipDriversProcessor(m, s) })
	r.register("championship_teams", func(m, s int) Processor { return newChampionshipTeamsProcessor(m, s) })
	r.register("drivers", func(m, s int) Processor { return newDriversProcessor(m, s) })
	r.register("intervals", func(m, s int) Processor { return newIntervalsProcessor(m, s) })
	r.register("laps", func(m, s int) Processor { return newLapsProcessor(m, s) })
	r.register("location", func(m, s int) Processor { return newLocationProcessor(m, s) })
	r.register("meetings", func(m, s int) Processor { return newMeetingsProcessor(m, s) })
	r.register("overtakes", func(m, s int) Processor { return newOvertakesProcessor(m, s) })
	r.register("pit", func(m, s int) Processor { return newPitProcessor(m, s) })
	r.register("position", func(m, s int) Processor { return newPositionProcessor(m, s) })
	r.register("race_control", func(m, s int) Processor { return newRaceControlProcessor(m, s) })
	r.register("sessions", func(m, s int) Processor { return newSessionsProcessor(m, s) })
	r.register("stints", func(m, s int) Processor { return newStintsProcessor(m, s) })
	r.register("team_radio", func(m, s int) Processor { return newTeamRadioProcessor(m, s) })
	r.register("weather", func(m, s int) Processor { return newWeatherProcessor(m, s) })

	return r
}

func (r *Registry) register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns all collection names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a processor for one collection.
func (r *Registry) New(name string, meetingKey, sessionKey int) (Processor, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no processor registered for collection %q", name)
	}
	return f(meetingKey, sessionKey), nil
}

// NewAll builds processors for the given collections, or for every registered
// collection when names is empty.
func (r *Registry) NewAll(names []string, meetingKey, sessionKey int) ([]Processor, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	procs := make([]Processor, 0, len(names))
	for _, name := range names {
		p, err := r.New(name, meetingKey, sessionKey)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// SourceTopics returns the union of source topics of the given collections
// (all collections when names is empty), sorted.
func (r *Registry) SourceTopics(names []string) ([]string, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	seen := make(map[string]bool)
	for _, name := range names {
		p, err := r.New(name, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, topic := range p.SourceTopics() {
			seen[topic] = true
		}
	}
	topics := make([]string, 0, len(seen))
	for topic := range seen {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics, nil
}

// naturalKey renders key parts into a deterministic string ID. Times are
// rendered as millisecond epoch, floats with minimal digits, nil as "none".
func naturalKey(parts ...any) string {
	rendered := make([]string, len(parts))
	for i, p := range parts {
		rendered[i] = keyPart(p)
	}
	return strings.Join(rendered, "_")
}

func keyPart(p any) string {
	switch v := p.(type) {
	case nil:
		return "none"
	case time.Time:
		return strconv.FormatInt(v.UnixMilli(), 10)
	case *time.Time:
		if v == nil {
			return "none"
		}
		return strconv.FormatInt(v.UnixMilli(), 10)
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case *int:
		if v == nil {
			return "none"
		}
		return strconv.Itoa(*v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
