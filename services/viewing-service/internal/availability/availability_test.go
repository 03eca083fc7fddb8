package availability

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/conflict"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/directory"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday.
var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func weekday(w time.Weekday, start, end model.Clock) model.AvailabilityWindow {
	return model.AvailabilityWindow{AgentID: "agent-1", Weekday: w, Start: start, End: end}
}

type fakeAppointments []model.Appointment

func (f fakeAppointments) ListActiveByAgent(_ context.Context, agentID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f {
		if a.AgentID == agentID && a.Status.Active() && conflict.Overlaps(a.Interval(), model.Interval{Start: from, End: to}) {
			out = append(out, a)
		}
	}
	return out, nil
}

func starts(seq func(func(model.Interval) bool)) []time.Time {
	var out []time.Time
	for s := range seq {
		out = append(out, s.Start)
	}
	return out
}

func newService(appts fakeAppointments, windows ...model.AvailabilityWindow) *Service {
	dir := directory.NewStatic(map[string][]model.AvailabilityWindow{"agent-1": windows}, nil)
	return NewService(dir, appts)
}

func TestFreeSlotsWholeWindow(t *testing.T) {
	svc := newService(nil, weekday(time.Monday, 9*60, 17*60))
	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: at(9, 0), To: at(11, 0), Granularity: 30 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(9, 0), at(9, 30), at(10, 0), at(10, 30)}, starts(seq))
}

func TestFreeSlotsOmitBookedTime(t *testing.T) {
	appts := fakeAppointments{{ID: "a1", AgentID: "agent-1", Status: model.StatusScheduled, ScheduledStart: at(10, 0), DurationMinutes: 60}}
	svc := newService(appts, weekday(time.Monday, 9*60, 17*60))
	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: at(9, 0), To: at(11, 0)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(9, 0), at(9, 30)}, starts(seq))
}

func TestFreeSlotsIgnoreTerminalAppointments(t *testing.T) {
	appts := fakeAppointments{{ID: "a1", AgentID: "agent-1", Status: model.StatusCancelled, ScheduledStart: at(10, 0), DurationMinutes: 60}}
	svc := newService(appts, weekday(time.Monday, 9*60, 17*60))
	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: at(9, 0), To: at(11, 0)})
	require.NoError(t, err)
	assert.Len(t, starts(seq), 4)
}

func TestSequenceIsRestartable(t *testing.T) {
	svc := newService(nil, weekday(time.Monday, 9*60, 17*60))
	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: at(9, 0), To: at(17, 0), Granularity: 15 * time.Minute})
	require.NoError(t, err)

	first := starts(seq)
	assert.Len(t, first, 32)

	var partial []time.Time
	for s := range seq {
		partial = append(partial, s.Start)
		if len(partial) == 3 {
			break
		}
	}
	assert.Equal(t, first[:3], partial)
	assert.Equal(t, first, starts(seq))
}

func TestBlockedAndAlignment(t *testing.T) {
	w := weekday(time.Monday, 9*60, 12*60)
	w.Blocked = []model.Interval{{Start: at(9, 10), End: at(9, 20)}}
	svc := newService(nil, w)

	// Range starts off-grid: slots stay aligned to the 09:00 window start.
	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: at(9, 5), To: at(11, 0), Granularity: 30 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(9, 30), at(10, 0), at(10, 30)}, starts(seq))
}

func TestDatedWindowOverridesWeekly(t *testing.T) {
	dated := model.AvailabilityWindow{AgentID: "agent-1", Date: "2026-03-02", Start: 14 * 60, End: 15 * 60}
	svc := newService(nil, weekday(time.Monday, 9*60, 17*60), dated)

	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: day, To: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(14, 0), at(14, 30)}, starts(seq))

	// The following Monday is not overridden.
	seq, err = svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: day.AddDate(0, 0, 7), To: day.AddDate(0, 0, 8)})
	require.NoError(t, err)
	assert.Len(t, starts(seq), 16)
}

func TestWindowsInAgentTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	w := weekday(time.Monday, 9*60, 10*60)
	w.Location = loc
	svc := newService(nil, w)

	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: day, To: day.Add(48 * time.Hour)})
	require.NoError(t, err)
	got := starts(seq)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, loc)))
}

func TestNotBefore(t *testing.T) {
	svc := newService(nil, weekday(time.Monday, 9*60, 17*60))
	seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: at(9, 0), To: at(11, 0), NotBefore: at(9, 45)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(10, 0), at(10, 30)}, starts(seq))
}

func TestComputeFreeSlotsValidation(t *testing.T) {
	svc := newService(nil, weekday(time.Monday, 9*60, 17*60))
	ctx := context.Background()
	cases := map[string]Query{
		"missing agent":  {From: at(9, 0), To: at(10, 0)},
		"inverted range": {AgentID: "agent-1", From: at(10, 0), To: at(9, 0)},
		"empty range":    {AgentID: "agent-1", From: at(10, 0), To: at(10, 0)},
		"negative":       {AgentID: "agent-1", From: at(9, 0), To: at(10, 0), Granularity: -time.Minute},
		"sub-minute":     {AgentID: "agent-1", From: at(9, 0), To: at(10, 0), Granularity: 90 * time.Second},
		"too long":       {AgentID: "agent-1", From: day, To: day.AddDate(0, 2, 0)},
		"unknown agent":  {AgentID: "ghost", From: at(9, 0), To: at(10, 0)},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ComputeFreeSlots(ctx, q)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

// Slots never overlap an active appointment, checked against the conflict
// detector as an independent oracle.
func TestSlotsNeverOverlapAppointments(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := range 200 {
		var appts fakeAppointments
		for i := range r.IntN(8) {
			status := model.Statuses[r.IntN(len(model.Statuses))]
			appts = append(appts, model.Appointment{
				ID:              string(rune('a' + i)),
				AgentID:         "agent-1",
				Status:          status,
				ScheduledStart:  at(8, 0).Add(time.Duration(r.IntN(10*60)) * time.Minute),
				DurationMinutes: 5 + r.IntN(120),
			})
		}
		gran := time.Duration(5+r.IntN(60)) * time.Minute
		svc := newService(appts, weekday(time.Monday, 9*60, 17*60))
		seq, err := svc.ComputeFreeSlots(context.Background(), Query{AgentID: "agent-1", From: at(7, 0), To: at(19, 0), Granularity: gran})
		require.NoError(t, err)

		var prev time.Time
		for slot := range seq {
			require.True(t, slot.Start.After(prev) || prev.IsZero(), "round %d: slots out of order", round)
			prev = slot.Start
			require.False(t, slot.Start.Before(at(9, 0)) || slot.End.After(at(17, 0)), "round %d: slot outside window", round)
			_, hit := conflict.FirstConflict(slot, appts, "")
			require.False(t, hit, "round %d: slot %v overlaps an appointment", round, slot)
		}
	}
}

func TestExpandMergesOverlappingWindows(t *testing.T) {
	got := Expand([]model.AvailabilityWindow{
		weekday(time.Monday, 9*60, 12*60),
		weekday(time.Monday, 11*60, 14*60),
	}, day, day.Add(24*time.Hour))
	assert.Equal(t, []model.Interval{{Start: at(9, 0), End: at(14, 0)}}, got)
	assert.True(t, slices.IsSortedFunc(got, func(a, b model.Interval) int { return a.Start.Compare(b.Start) }))
}
