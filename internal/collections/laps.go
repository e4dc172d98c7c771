package collections

import (
	"math"
	"sort"
	"time"

	"github.com/pitwall/pitwall/internal/feed"
)

// Lap is one completed or in-progress lap of one driver.
type Lap struct {
	MeetingKey      int        `bson:"meeting_key" json:"meeting_key"`
	SessionKey      int        `bson:"session_key" json:"session_key"`
	DriverNumber    int        `bson:"driver_number" json:"driver_number"`
	LapNumber       int        `bson:"lap_number" json:"lap_number"`
	DateStart       *time.Time `bson:"date_start" json:"date_start"`
	DurationSector1 *float64   `bson:"duration_sector_1" json:"duration_sector_1"`
	DurationSector2 *float64   `bson:"duration_sector_2" json:"duration_sector_2"`
	DurationSector3 *float64   `bson:"duration_sector_3" json:"duration_sector_3"`
	I1Speed         *int       `bson:"i1_speed" json:"i1_speed"`
	I2Speed         *int       `bson:"i2_speed" json:"i2_speed"`
	IsPitOutLap     bool       `bson:"is_pit_out_lap" json:"is_pit_out_lap"`
	LapDuration     *float64   `bson:"lap_duration" json:"lap_duration"`
	SegmentsSector1 []*int     `bson:"segments_sector_1" json:"segments_sector_1"`
	SegmentsSector2 []*int     `bson:"segments_sector_2" json:"segments_sector_2"`
	SegmentsSector3 []*int     `bson:"segments_sector_3" json:"segments_sector_3"`
	STSpeed         *int       `bson:"st_speed" json:"st_speed"`
}

func (l Lap) ID() string {
	return naturalKey(l.SessionKey, l.LapNumber, l.DriverNumber)
}

func (l *Lap) sectorDuration(sector int) *float64 {
	switch sector {
	case 1:
		return l.DurationSector1
	case 2:
		return l.DurationSector2
	default:
		return l.DurationSector3
	}
}

func (l *Lap) setSectorDuration(sector int, v float64) {
	switch sector {
	case 1:
		l.DurationSector1 = &v
	case 2:
		l.DurationSector2 = &v
	default:
		l.DurationSector3 = &v
	}
}

func (l *Lap) segments(sector int) []*int {
	switch sector {
	case 1:
		return l.SegmentsSector1
	case 2:
		return l.SegmentsSector2
	default:
		return l.SegmentsSector3
	}
}

func (l *Lap) setSegments(sector int, v []*int) {
	switch sector {
	case 1:
		l.SegmentsSector1 = v
	case 2:
		l.SegmentsSector2 = v
	default:
		l.SegmentsSector3 = v
	}
}

// clone returns a value copy safe to emit while the processor keeps mutating
// the original (segment slices are copied too).
func (l *Lap) clone() Lap {
	c := *l
	c.SegmentsSector1 = append([]*int(nil), l.SegmentsSector1...)
	c.SegmentsSector2 = append([]*int(nil), l.SegmentsSector2...)
	c.SegmentsSector3 = append([]*int(nil), l.SegmentsSector3...)
	return c
}

// lapsProcessor derives laps from TimingData, using TimingAppData only to
// detect the session start. Lap and sector boundaries depend on chronological
// continuity, so this processor is strictly order dependent.
type lapsProcessor struct {
	meetingKey       int
	sessionKey       int
	isSessionStarted bool
	laps             map[int][]*Lap
	updated          map[*Lap]bool
}

func newLapsProcessor(meetingKey, sessionKey int) *lapsProcessor {
	return &lapsProcessor{
		meetingKey: meetingKey,
		sessionKey: sessionKey,
		laps:       make(map[int][]*Lap),
		updated:    make(map[*Lap]bool),
	}
}

func (p *lapsProcessor) Name() string           { return "laps" }
func (p *lapsProcessor) SourceTopics() []string { return []string{"TimingAppData", "TimingData"} }
func (p *lapsProcessor) Stateful() bool         { return true }

func (p *lapsProcessor) addLap(driverNumber, lapNumber int) {
	p.laps[driverNumber] = append(p.laps[driverNumber], &Lap{
		MeetingKey:   p.meetingKey,
		SessionKey:   p.sessionKey,
		DriverNumber: driverNumber,
		LapNumber:    lapNumber,
	})
}

func (p *lapsProcessor) latestLap(driverNumber int) *Lap {
	if len(p.laps[driverNumber]) == 0 {
		p.addLap(driverNumber, 1)
	}
	laps := p.laps[driverNumber]
	return laps[len(laps)-1]
}

// targetLap picks the lap an end-of-lap update applies to. Sector 3 and lap
// time data can arrive just after the next lap has been created; in that case
// the update belongs to the previous lap.
func (p *lapsProcessor) targetLap(driverNumber int, isEndOfLap bool, timepoint time.Time) *Lap {
	lap := p.latestLap(driverNumber)
	if isEndOfLap && lap.DateStart != nil && timepoint.Sub(*lap.DateStart) < 10*time.Second {
		laps := p.laps[driverNumber]
		if len(laps) < 2 {
			return nil
		}
		return laps[len(laps)-2]
	}
	return lap
}

func (p *lapsProcessor) markUpdated(lap *Lap) {
	p.updated[lap] = true
}

// inferMissingLapDuration completes the lap duration once all three sector
// durations are known.
func inferMissingLapDuration(lap *Lap) {
	if lap.LapDuration != nil {
		return
	}
	if lap.DurationSector1 == nil || lap.DurationSector2 == nil || lap.DurationSector3 == nil {
		return
	}
	total := round3(*lap.DurationSector1 + *lap.DurationSector2 + *lap.DurationSector3)
	lap.LapDuration = &total
}

// inferMissingSectorDuration completes a single missing sector duration from
// the lap duration and the two known sectors.
func inferMissingSectorDuration(lap *Lap) {
	if lap.LapDuration == nil {
		return
	}

	missing := 0
	missingSector := 0
	sum := 0.0
	for sector := 1; sector <= 3; sector++ {
		if d := lap.sectorDuration(sector); d == nil {
			missing++
			missingSector = sector
		} else {
			sum += *d
		}
	}

	if missing == 1 {
		if inferred := *lap.LapDuration - sum; inferred > 0 {
			lap.setSectorDuration(missingSector, round3(inferred))
		}
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func (p *lapsProcessor) ProcessMessage(msg feed.Message) ([]Document, error) {
	content, ok := asMap(msg.Content)
	if !ok {
		return nil, nil
	}
	lines, ok := asMap(content["Lines"])
	if !ok {
		return nil, nil
	}

	for numberKey, raw := range lines {
		data, isMap := asMap(raw)

		if msg.Topic == "TimingAppData" {
			if isMap && data["Stints"] != nil {
				p.isSessionStarted = true
			}
			continue
		}

		if !p.isSessionStarted || msg.Topic != "TimingData" {
			continue
		}

		driverNumber, ok := toInt(numberKey)
		if !ok || !isMap {
			continue
		}

		p.processLine(driverNumber, data, msg.Timepoint)
	}

	return p.flushUpdated(), nil
}

func (p *lapsProcessor) processLine(driverNumber int, data map[string]any, timepoint time.Time) {
	if last, ok := asMap(data["LastLapTime"]); ok {
		if value, ok := toString(last["Value"]); ok && value != "" {
			if d, err := feed.ParseSessionTime(value); err == nil {
				p.updateLapDuration(driverNumber, d.Seconds(), true, timepoint)
			}
		}
	}

	if sectors, ok := asMap(data["Sectors"]); ok {
		for sectorKey, sectorRaw := range sectors {
			idx, ok := toInt(sectorKey)
			if !ok {
				continue
			}
			sectorNumber := idx + 1
			sectorData, ok := asMap(sectorRaw)
			if !ok {
				continue
			}
			p.processSector(driverNumber, sectorNumber, sectorData, timepoint)
		}
	}

	if speeds, ok := asMap(data["Speeds"]); ok {
		p.processSpeeds(driverNumber, speeds)
	}

	if n, ok := toInt(data["NumberOfLaps"]); ok {
		if latest := p.latestLap(driverNumber); n > latest.LapNumber {
			p.addLap(driverNumber, n)
		}
		lap := p.latestLap(driverNumber)
		if lap.DateStart == nil || !lap.DateStart.Equal(timepoint) {
			t := timepoint
			lap.DateStart = &t
			p.markUpdated(lap)
		}
	}

	if data["PitOut"] != nil {
		lap := p.latestLap(driverNumber)
		if !lap.IsPitOutLap {
			lap.IsPitOutLap = true
			p.markUpdated(lap)
		}
	}
}

func (p *lapsProcessor) updateLapDuration(driverNumber int, seconds float64, isEndOfLap bool, timepoint time.Time) {
	lap := p.targetLap(driverNumber, isEndOfLap, timepoint)
	if lap == nil {
		return
	}
	if lap.LapDuration != nil && *lap.LapDuration == seconds {
		return
	}
	lap.LapDuration = &seconds
	inferMissingSectorDuration(lap)
	p.markUpdated(lap)
}

func (p *lapsProcessor) processSector(driverNumber, sectorNumber int, sectorData map[string]any, timepoint time.Time) {
	isEndOfLap := sectorNumber == 3

	if raw, present := sectorData["Value"]; present {
		if duration, ok := toFloat(raw); ok {
			lap := p.targetLap(driverNumber, isEndOfLap, timepoint)
			if lap != nil {
				if d := lap.sectorDuration(sectorNumber); d == nil || *d != duration {
					lap.setSectorDuration(sectorNumber, duration)
					inferMissingSectorDuration(lap)
					inferMissingLapDuration(lap)
					p.markUpdated(lap)
				}
			}
		}
	}

	if segments, ok := asMap(sectorData["Segments"]); ok {
		for segmentKey, segmentRaw := range segments {
			segmentNumber, ok := toInt(segmentKey)
			if !ok {
				continue
			}
			segmentData, ok := asMap(segmentRaw)
			if !ok {
				continue
			}
			status, ok := toInt(segmentData["Status"])
			if !ok {
				continue
			}
			p.addSegmentStatus(driverNumber, sectorNumber, segmentNumber, status, isEndOfLap, timepoint)
		}
	}
}

// maxSegmentsPerSector bounds the per-sector segment list. The feed tops out
// around 40 mini-sectors per sector; indices beyond this are glitches.
const maxSegmentsPerSector = 64

func (p *lapsProcessor) addSegmentStatus(driverNumber, sectorNumber, segmentNumber, status int, isEndOfLap bool, timepoint time.Time) {
	if segmentNumber < 0 || segmentNumber >= maxSegmentsPerSector {
		return
	}

	lap := p.targetLap(driverNumber, isEndOfLap, timepoint)
	if lap == nil {
		return
	}

	segments := lap.segments(sectorNumber)
	for segmentNumber >= len(segments) {
		segments = append(segments, nil)
	}
	if segments[segmentNumber] != nil && *segments[segmentNumber] == status {
		lap.setSegments(sectorNumber, segments)
		return
	}
	segments[segmentNumber] = intPtr(status)
	lap.setSegments(sectorNumber, segments)
	p.markUpdated(lap)
}

func (p *lapsProcessor) processSpeeds(driverNumber int, speeds map[string]any) {
	for label, raw := range speeds {
		speedData, ok := asMap(raw)
		if !ok {
			continue
		}
		value, ok := toInt(speedData["Value"])
		if !ok {
			continue
		}

		lap := p.latestLap(driverNumber)
		switch label {
		case "ST":
			if lap.STSpeed == nil || *lap.STSpeed != value {
				lap.STSpeed = intPtr(value)
				p.markUpdated(lap)
			}
		case "I1":
			if lap.I1Speed == nil || *lap.I1Speed != value {
				lap.I1Speed = intPtr(value)
				p.markUpdated(lap)
			}
		case "I2":
			if lap.I2Speed == nil || *lap.I2Speed != value {
				lap.I2Speed = intPtr(value)
				p.markUpdated(lap)
			}
		}
	}
}

func (p *lapsProcessor) flushUpdated() []Document {
	if len(p.updated) == 0 {
		return nil
	}
	laps := make([]*Lap, 0, len(p.updated))
	for lap := range p.updated {
		laps = append(laps, lap)
	}
	sort.Slice(laps, func(i, j int) bool {
		if laps[i].DriverNumber != laps[j].DriverNumber {
			return laps[i].DriverNumber < laps[j].DriverNumber
		}
		return laps[i].LapNumber < laps[j].LapNumber
	})

	docs := make([]Document, 0, len(laps))
	for _, lap := range laps {
		docs = append(docs, lap.clone())
	}
	p.updated = make(map[*Lap]bool)
	return docs
}
