package pause

import (
	"testing"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

var base = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func started(kind domain.PauseKind, seq int, at time.Time) Event {
	return Event{
		Action: domain.PauseActionStarted,
		Pause:  domain.Pause{Kind: kind, Sequence: seq, StartedAt: at},
	}
}

func ended(kind domain.PauseKind, seq int, from, to time.Time) Event {
	return Event{
		Action: domain.PauseActionEnded,
		Pause:  domain.Pause{Kind: kind, Sequence: seq, StartedAt: from, EndedAt: &to},
	}
}

func TestApplyIdempotent(t *testing.T) {
	state := NewState()
	ev := started(domain.PauseKindBreak, 1, base)

	state = Apply(state, ev, base)
	state = Apply(state, ev, base)

	snap := state.Snapshot()
	if snap.Current == nil || snap.Current.Sequence != 1 {
		t.Fatalf("expected one open break, got %+v", snap)
	}
	if len(snap.History) != 0 {
		t.Fatalf("duplicate start must not add history entries: %+v", snap.History)
	}

	end := ended(domain.PauseKindBreak, 1, base, base.Add(4*time.Minute+20*time.Second))
	state = Apply(state, end, base)
	state = Apply(state, end, base)

	snap = state.Snapshot()
	if snap.Current != nil {
		t.Fatalf("expected no open pause after end, got %+v", snap.Current)
	}
	if len(snap.History) != 1 {
		t.Fatalf("expected one closed pause, got %d", len(snap.History))
	}
	if got := *snap.History[0].DurationMinutes; got != 5 {
		t.Fatalf("expected 4m20s to record 5 minutes, got %d", got)
	}
}

func TestStaleStartAfterEnd(t *testing.T) {
	state := NewState()
	state = Apply(state, ended(domain.PauseKindLunch, 1, base, base.Add(30*time.Minute)), base)

	// The matching start arrives late with the identical started-at;
	// the interval already closed.
	state = Apply(state, started(domain.PauseKindLunch, 1, base), base)

	snap := state.Snapshot()
	if snap.Current != nil {
		t.Fatalf("stale start must not reopen the pause: %+v", snap.Current)
	}
	if len(snap.History) != 1 || *snap.History[0].DurationMinutes != 30 {
		t.Fatalf("unexpected history: %+v", snap.History)
	}
}

func TestRestartSupersedesClosedSequence(t *testing.T) {
	state := NewState()
	state = Apply(state, ended(domain.PauseKindBreak, 1, base, base.Add(10*time.Minute)), base)

	// A start on the same sequence with a different started-at is a
	// restart, not a late duplicate: it reopens the sequence and the
	// closed record is dropped.
	restartAt := base.Add(time.Hour)
	state = Apply(state, started(domain.PauseKindBreak, 1, restartAt), restartAt)

	snap := state.Snapshot()
	if snap.Current == nil || !snap.Current.StartedAt.Equal(restartAt) {
		t.Fatalf("restart must reopen the sequence, got %+v", snap.Current)
	}
	if len(snap.History) != 0 {
		t.Fatalf("superseded record must leave history, got %+v", snap.History)
	}
}

func TestDuplicateAndOutOfOrderDelivery(t *testing.T) {
	// Scenario: break 1 start, break 1 end, break 2 start delivered as
	// end-1, start-1, start-2, end-1 again.
	events := []Event{
		ended(domain.PauseKindBreak, 1, base, base.Add(10*time.Minute)),
		started(domain.PauseKindBreak, 1, base),
		started(domain.PauseKindBreak, 2, base.Add(time.Hour)),
		ended(domain.PauseKindBreak, 1, base, base.Add(10*time.Minute)),
	}

	state := NewState()
	for _, ev := range events {
		state = Apply(state, ev, base.Add(2*time.Hour))
	}

	snap := state.Snapshot()
	if snap.Current == nil || snap.Current.Sequence != 2 {
		t.Fatalf("expected break 2 open, got %+v", snap.Current)
	}
	if len(snap.History) != 1 || snap.History[0].Sequence != 1 {
		t.Fatalf("expected exactly break 1 in history, got %+v", snap.History)
	}
	if state.TotalMinutes() != 10 {
		t.Fatalf("expected 10 recorded minutes, got %d", state.TotalMinutes())
	}
}

func TestSupersedeEvictsGuessedSequence(t *testing.T) {
	// The optimistic start guessed sequence 1; the server had already
	// assigned it and answers with sequence 3.
	state := Apply(NewState(), started(domain.PauseKindBreak, 1, base), base)
	state = Supersede(state, started(domain.PauseKindBreak, 3, base), base)

	snap := state.Snapshot()
	if snap.Current == nil || snap.Current.Sequence != 3 {
		t.Fatalf("expected the server sequence to win, got %+v", snap.Current)
	}
	if len(snap.History) != 0 {
		t.Fatalf("guessed entry must be evicted, not kept: %+v", snap.History)
	}

	// Closed entries of the kind and open pauses of other kinds stay.
	state = Apply(state, ended(domain.PauseKindBreak, 3, base, base.Add(10*time.Minute)), base)
	state = Apply(state, started(domain.PauseKindLunch, 1, base.Add(time.Hour)), base)
	state = Supersede(state, started(domain.PauseKindBreak, 4, base.Add(2*time.Hour)), base)

	snap = state.Snapshot()
	if snap.Current == nil || snap.Current.Sequence != 4 {
		t.Fatalf("expected break 4 open, got %+v", snap.Current)
	}
	if len(snap.History) != 2 {
		t.Fatalf("expected closed break and open lunch kept, got %+v", snap.History)
	}
}

func TestMalformedEventsIgnored(t *testing.T) {
	state := Apply(NewState(), started(domain.PauseKindBreak, 1, base), base)

	malformed := []Event{
		started("nap", 1, base),
		started(domain.PauseKindBreak, 0, base),
		started(domain.PauseKindBreak, 2, time.Time{}),
		{Action: "paused", Pause: domain.Pause{Kind: domain.PauseKindBreak, Sequence: 3, StartedAt: base}},
	}
	for _, ev := range malformed {
		state = Apply(state, ev, base)
	}

	snap := state.Snapshot()
	if snap.Current == nil || snap.Current.Sequence != 1 || len(snap.History) != 0 {
		t.Fatalf("malformed events changed state: %+v", snap)
	}
}

func TestEndWithoutTimestampUsesNow(t *testing.T) {
	now := base.Add(7*time.Minute + 30*time.Second)
	state := Apply(NewState(), started(domain.PauseKindBreak, 1, base), base)
	state = Apply(state, Event{
		Action: domain.PauseActionEnded,
		Pause:  domain.Pause{Kind: domain.PauseKindBreak, Sequence: 1, StartedAt: base},
	}, now)

	snap := state.Snapshot()
	if len(snap.History) != 1 {
		t.Fatalf("expected one closed pause, got %+v", snap)
	}
	if got := *snap.History[0].DurationMinutes; got != 8 {
		t.Fatalf("expected 7m30s to record 8 minutes, got %d", got)
	}
}

func TestBuildRoundTrip(t *testing.T) {
	state := NewState()
	state = Apply(state, started(domain.PauseKindBreak, 1, base), base)
	state = Apply(state, ended(domain.PauseKindBreak, 1, base, base.Add(10*time.Minute)), base)
	state = Apply(state, started(domain.PauseKindLunch, 1, base.Add(time.Hour)), base)

	snap := state.Snapshot()
	rebuilt := Build(&snap, base.Add(2*time.Hour)).Snapshot()

	if rebuilt.Current == nil || rebuilt.Current.Kind != domain.PauseKindLunch {
		t.Fatalf("round trip lost the open lunch: %+v", rebuilt.Current)
	}
	if len(rebuilt.History) != 1 || rebuilt.History[0].Kind != domain.PauseKindBreak {
		t.Fatalf("round trip mangled history: %+v", rebuilt.History)
	}

	if got := Build(nil, base).Snapshot(); got.Current != nil || len(got.History) != 0 {
		t.Fatalf("nil snapshot must build an empty state: %+v", got)
	}
}

func TestCeilMinutesTable(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{-time.Minute, 0},
		{time.Second, 1},
		{60 * time.Second, 1},
		{240 * time.Second, 4},
		{260 * time.Second, 5},
	}
	for _, tc := range cases {
		if got := CeilMinutes(base, base.Add(tc.elapsed)); got != tc.want {
			t.Fatalf("CeilMinutes(%v) = %d, want %d", tc.elapsed, got, tc.want)
		}
	}
}
