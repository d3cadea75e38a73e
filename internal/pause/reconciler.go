// Package pause reconciles break and lunch intervals on the client.
//
// The queue delivers pause events at least once and possibly out of
// order, so state is keyed by (kind, sequence) rather than timestamps:
// re-applying an event lands on the same key and changes nothing.
package pause

import (
	"sort"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// Event is one pause transition observed from the server (or applied
// optimistically on enqueue).
type Event struct {
	Action domain.PauseAction
	Pause  domain.Pause
}

// State is an immutable view of a session's pauses. Apply returns a new
// State and never mutates the receiver.
type State struct {
	entries map[domain.PauseKey]domain.Pause
}

// NewState returns an empty state.
func NewState() State {
	return State{entries: map[domain.PauseKey]domain.Pause{}}
}

// Apply folds one event into the state. Malformed events (unknown kind,
// non-positive sequence, zero start time) return the prior state
// unchanged; the reconciler is total and never errors.
func Apply(state State, event Event, now time.Time) State {
	p := event.Pause
	if !p.Kind.Valid() || p.Sequence <= 0 || p.StartedAt.IsZero() {
		return state
	}

	next := state.clone()
	key := p.Key()

	switch event.Action {
	case domain.PauseActionStarted:
		if existing, ok := next.entries[key]; ok && !existing.Open() && existing.StartedAt.Equal(p.StartedAt) {
			// A late duplicate start for an interval that already
			// closed carries no new information. A start with a
			// different started-at is a restart of the sequence and
			// supersedes the closed record.
			return state
		}
		next.entries[key] = p

	case domain.PauseActionEnded:
		if p.EndedAt == nil {
			ended := now
			p.EndedAt = &ended
		}
		if p.DurationMinutes == nil {
			minutes := CeilMinutes(p.StartedAt, *p.EndedAt)
			p.DurationMinutes = &minutes
		}
		next.entries[key] = p

	default:
		return state
	}

	return next
}

// Supersede folds an authoritative pause record into the state,
// discarding any open pause of the same kind held under a different
// sequence. An optimistic start guesses the next sequence from local
// history; when the server assigned another one, the guessed entry
// would otherwise stay open beside the real record.
func Supersede(state State, event Event, now time.Time) State {
	p := event.Pause
	if !p.Kind.Valid() || p.Sequence <= 0 || p.StartedAt.IsZero() {
		return state
	}

	next := state.clone()
	for key, existing := range next.entries {
		if existing.Kind == p.Kind && existing.Open() && key != p.Key() {
			delete(next.entries, key)
		}
	}
	return Apply(next, event, now)
}

// Build constructs state from the server's authoritative snapshot,
// discarding whatever was reconciled locally.
func Build(snapshot *domain.PauseSnapshot, now time.Time) State {
	state := NewState()
	if snapshot == nil {
		return state
	}
	for _, p := range snapshot.History {
		state = Apply(state, Event{Action: domain.PauseActionEnded, Pause: p}, now)
	}
	if snapshot.Current != nil {
		state = Apply(state, Event{Action: domain.PauseActionStarted, Pause: *snapshot.Current}, now)
	}
	return state
}

// Snapshot renders the state in the server's snapshot shape: the open
// pause (latest start wins) plus closed pauses sorted by start time.
func (s State) Snapshot() domain.PauseSnapshot {
	snapshot := domain.PauseSnapshot{History: []domain.Pause{}}
	for _, p := range s.entries {
		if p.Open() {
			if snapshot.Current == nil || p.StartedAt.After(snapshot.Current.StartedAt) {
				if snapshot.Current != nil {
					snapshot.History = append(snapshot.History, *snapshot.Current)
				}
				current := p
				snapshot.Current = &current
				continue
			}
		}
		snapshot.History = append(snapshot.History, p)
	}
	sort.Slice(snapshot.History, func(i, j int) bool {
		return snapshot.History[i].StartedAt.Before(snapshot.History[j].StartedAt)
	})
	return snapshot
}

// Open returns the open pause of the given kind, or nil.
func (s State) Open(kind domain.PauseKind) *domain.Pause {
	for _, p := range s.entries {
		if p.Kind == kind && p.Open() {
			open := p
			return &open
		}
	}
	return nil
}

// Paused reports whether any pause is currently open.
func (s State) Paused() bool {
	for _, p := range s.entries {
		if p.Open() {
			return true
		}
	}
	return false
}

// TotalMinutes sums the recorded duration of every closed pause.
func (s State) TotalMinutes() int {
	total := 0
	for _, p := range s.entries {
		if p.DurationMinutes != nil {
			total += *p.DurationMinutes
		}
	}
	return total
}

// CeilMinutes converts an interval into whole minutes, partial minutes
// rounding up. Negative intervals record as zero.
func CeilMinutes(start, end time.Time) int {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	minutes := int(elapsed / time.Minute)
	if elapsed%time.Minute != 0 {
		minutes++
	}
	return minutes
}

func (s State) clone() State {
	entries := make(map[domain.PauseKey]domain.Pause, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	return State{entries: entries}
}
