package timeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// registrationSlack bounds how stale a checkpoint may be at fixture
// registration and still fire immediately instead of being skipped.
const registrationSlack = 30 * time.Minute

// EventType classifies tracker events.
type EventType string

const (
	EventCheckpointDue    EventType = "checkpoint_due"
	EventCheckpointMissed EventType = "checkpoint_missed"
	EventWindowStarted    EventType = "window_started"
	EventWindowEnded      EventType = "window_ended"
)

// Event is emitted by Advance when a fixture crosses a timeline boundary.
// Offset identifies the checkpoint (distance before puck drop) for
// checkpoint events; it is zero for window events.
type Event struct {
	Type      EventType
	FixtureID string
	Offset    time.Duration
	At        time.Time
}

// checkpoint is a single scheduled evaluation point for one fixture.
type checkpoint struct {
	offset time.Duration
	due    time.Time
	fired  bool // due event emitted, awaiting completion
	done   bool // handled (or skipped at registration)
	missed bool
}

type fixtureState struct {
	fixture     types.Fixture
	phase       types.Phase
	checkpoints []*checkpoint
	windowStart time.Time
	windowEnd   time.Time

	windowStarted bool
	windowEnded   bool
	excluded      bool
}

// Tracker owns the time-based lifecycle of every registered fixture. It is
// the single source of truth for phases and checkpoint state. All decisions
// are driven by the caller-supplied clock value, never the wall clock, so
// the engine and tests fully control time.
type Tracker struct {
	mu       sync.Mutex
	config   Config
	logger   *zap.Logger
	fixtures map[string]*fixtureState
}

// Config holds tracker configuration.
type Config struct {
	CheckpointOffsets []time.Duration // distances before puck drop, largest first
	Tolerance         time.Duration   // how early a checkpoint may fire
	Grace             time.Duration   // how late before a checkpoint is missed
	WindowDuration    time.Duration
	Logger            *zap.Logger
}

// New creates a new fixture timeline tracker. When no checkpoint offsets
// are configured the standard 6h/3h/30m ladder is used.
func New(cfg Config) *Tracker {
	if len(cfg.CheckpointOffsets) == 0 {
		cfg.CheckpointOffsets = []time.Duration{6 * time.Hour, 3 * time.Hour, 30 * time.Minute}
	}

	return &Tracker{
		config:   cfg,
		logger:   cfg.Logger,
		fixtures: make(map[string]*fixtureState),
	}
}

// Add registers a fixture. Checkpoints already in the past at registration
// are skipped, except the most recent one when it is stale by less than
// registrationSlack: that one fires immediately so a bot started between
// checkpoints still evaluates the nearest bucket it can.
func (t *Tracker) Add(f *types.Fixture, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.fixtures[f.ID]; exists {
		return fmt.Errorf("fixture %s already tracked", f.ID)
	}

	state := &fixtureState{
		fixture:     *f,
		phase:       types.PhaseScheduled,
		windowStart: f.StartTime,
		windowEnd:   f.StartTime.Add(t.config.WindowDuration),
	}

	for _, offset := range t.config.CheckpointOffsets {
		state.checkpoints = append(state.checkpoints, &checkpoint{
			offset: offset,
			due:    f.StartTime.Add(-offset),
		})
	}

	// Resolve checkpoints that are already behind us.
	var lastPast *checkpoint
	for _, cp := range state.checkpoints {
		if cp.due.Before(now) {
			cp.done = true
			lastPast = cp
		}
	}
	if lastPast != nil && now.Sub(lastPast.due) <= registrationSlack && now.Before(f.StartTime) {
		lastPast.done = false
		lastPast.due = now
	}

	t.fixtures[f.ID] = state
	FixturesTrackedTotal.Inc()
	ActiveFixtures.Inc()

	t.logger.Info("fixture-registered",
		zap.String("fixture-id", f.ID),
		zap.String("matchup", f.Matchup()),
		zap.Time("puck-drop", f.StartTime))

	return nil
}

// Contains reports whether the fixture is already tracked.
func (t *Tracker) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.fixtures[id]
	return ok
}

// Advance moves every fixture's timeline forward to now and returns the
// events that became due, ordered by fixture ID and then checkpoint depth.
// Each event is emitted at most once per fixture.
func (t *Tracker) Advance(now time.Time) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.fixtures))
	for id := range t.fixtures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []Event
	for _, id := range ids {
		state := t.fixtures[id]
		if state.excluded || state.windowEnded {
			continue
		}
		events = append(events, t.advanceFixture(id, state, now)...)
	}

	return events
}

func (t *Tracker) advanceFixture(id string, state *fixtureState, now time.Time) []Event {
	var events []Event

	for _, cp := range state.checkpoints {
		if cp.done || cp.missed {
			continue
		}

		switch {
		case cp.fired:
			// Due already emitted; waiting on MarkCheckpointDone or Retry.
		case now.After(cp.due.Add(t.config.Grace)):
			cp.missed = true
			CheckpointsMissedTotal.WithLabelValues(offsetLabel(cp.offset)).Inc()
			events = append(events, Event{
				Type:      EventCheckpointMissed,
				FixtureID: id,
				Offset:    cp.offset,
				At:        now,
			})
		case !now.Before(cp.due.Add(-t.config.Tolerance)):
			cp.fired = true
			CheckpointsFiredTotal.WithLabelValues(offsetLabel(cp.offset)).Inc()
			events = append(events, Event{
				Type:      EventCheckpointDue,
				FixtureID: id,
				Offset:    cp.offset,
				At:        now,
			})
		}
	}

	if !state.windowStarted && !now.Before(state.windowStart) {
		state.windowStarted = true
		events = append(events, Event{
			Type:      EventWindowStarted,
			FixtureID: id,
			At:        now,
		})
	}

	if state.windowStarted && !state.windowEnded && !now.Before(state.windowEnd) {
		state.windowEnded = true
		state.phase = types.PhaseClosed
		ActiveFixtures.Dec()
		events = append(events, Event{
			Type:      EventWindowEnded,
			FixtureID: id,
			At:        now,
		})
	}

	return events
}

// MarkCheckpointDone records that the engine finished handling a
// checkpoint. The checkpoint will not fire again.
func (t *Tracker) MarkCheckpointDone(id string, offset time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.fixtures[id]
	if !ok {
		return
	}

	for _, cp := range state.checkpoints {
		if cp.offset == offset {
			cp.done = true
			return
		}
	}
}

// Retry re-arms a fired checkpoint after a transient handling failure so
// the next Advance within the grace window fires it again. Past the grace
// window the checkpoint lapses into missed instead.
func (t *Tracker) Retry(id string, offset time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.fixtures[id]
	if !ok {
		return
	}

	for _, cp := range state.checkpoints {
		if cp.offset == offset && cp.fired && !cp.done {
			cp.fired = false
			CheckpointRetriesTotal.WithLabelValues(offsetLabel(offset)).Inc()
			return
		}
	}
}

// SetPhase advances a fixture's phase. Phases are monotonic: attempts to
// move backwards are ignored.
func (t *Tracker) SetPhase(id string, phase types.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.fixtures[id]
	if !ok {
		return
	}

	if phase <= state.phase {
		return
	}

	t.logger.Debug("fixture-phase-change",
		zap.String("fixture-id", id),
		zap.String("from", state.phase.String()),
		zap.String("to", phase.String()))
	state.phase = phase
}

// Exclude abandons a fixture: no further events are emitted for it.
func (t *Tracker) Exclude(id string, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.fixtures[id]
	if !ok || state.excluded {
		return
	}

	state.excluded = true
	if state.phase != types.PhaseClosed {
		state.phase = types.PhaseClosed
		ActiveFixtures.Dec()
	}
	FixturesExcludedTotal.WithLabelValues(reason).Inc()

	t.logger.Warn("fixture-excluded",
		zap.String("fixture-id", id),
		zap.String("reason", reason))
}

// UpdateFixture mutates the tracked fixture under the tracker lock.
func (t *Tracker) UpdateFixture(id string, fn func(*types.Fixture)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.fixtures[id]
	if !ok {
		return
	}

	fn(&state.fixture)
}

// Fixture returns a snapshot copy of a tracked fixture and its phase.
func (t *Tracker) Fixture(id string) (types.Fixture, types.Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.fixtures[id]
	if !ok {
		return types.Fixture{}, 0, false
	}

	return state.fixture, state.phase, true
}

// FixtureView is a read-only snapshot of one tracked fixture.
type FixtureView struct {
	Fixture  types.Fixture
	Phase    types.Phase
	Excluded bool
}

// Snapshot returns snapshots of all tracked fixtures, sorted by ID.
func (t *Tracker) Snapshot() []FixtureView {
	t.mu.Lock()
	defer t.mu.Unlock()

	views := make([]FixtureView, 0, len(t.fixtures))
	for _, state := range t.fixtures {
		views = append(views, FixtureView{
			Fixture:  state.fixture,
			Phase:    state.phase,
			Excluded: state.excluded,
		})
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].Fixture.ID < views[j].Fixture.ID
	})

	return views
}

// RemoveClosedBefore drops closed fixtures whose window ended before the
// cutoff and returns how many were removed.
func (t *Tracker) RemoveClosedBefore(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, state := range t.fixtures {
		if state.phase != types.PhaseClosed {
			continue
		}
		if state.windowEnd.Before(cutoff) {
			delete(t.fixtures, id)
			removed++
		}
	}

	return removed
}

func offsetLabel(offset time.Duration) string {
	return offset.String()
}
