package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/viewings/libs/auth"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/conflict"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/directory"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agent = "agent-1"

// Monday.
var day = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type harness struct {
	engine *Engine
	store  *storage.Memory
	bus    *events.Bus
	now    time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	var windows []model.AvailabilityWindow
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		windows = append(windows, model.AvailabilityWindow{AgentID: agent, Weekday: wd, Start: 9 * 60, End: 17 * 60})
	}
	windows = append(windows, model.AvailabilityWindow{
		AgentID: agent, Weekday: time.Monday, Start: 9 * 60, End: 17 * 60,
		Blocked: []model.Interval{{Start: at(12, 0), End: at(13, 0)}},
	})
	dir := directory.NewStatic(map[string][]model.AvailabilityWindow{
		agent:     windows,
		"agent-2": windows[:7],
	}, []string{"prop-1", "prop-2"})

	h := &harness{
		store: storage.NewMemory(time.Second),
		bus:   events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil))),
		now:   at(7, 0),
	}
	base := []Option{
		WithClock(func() time.Time { return h.now }),
		WithBus(h.bus),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.engine = NewEngine(h.store, dir, DefaultPolicy(), append(base, opts...)...)
	return h
}

func request(start time.Time, minutes int) BookRequest {
	return BookRequest{
		AgentID:         agent,
		PropertyID:      "prop-1",
		ClientContact:   model.ClientContact{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 7946 0958"},
		ScheduledStart:  start,
		DurationMinutes: minutes,
		ViewingType:     model.ViewingInPerson,
		AttendeeCount:   2,
	}
}

func (h *harness) book(t *testing.T, start time.Time, minutes int) model.Appointment {
	t.Helper()
	a, created, err := h.engine.Book(context.Background(), request(start, minutes))
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func (h *harness) transition(t *testing.T, a model.Appointment, to model.Status) model.Appointment {
	t.Helper()
	next, err := h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: a.Version, Target: to})
	require.NoError(t, err)
	return next
}

func TestBookCreatesScheduledAppointment(t *testing.T) {
	h := newHarness(t)
	ctx := auth.ContextWithIdentity(context.Background(), auth.Identity{Subject: "user-9"})

	a, created, err := h.engine.Book(ctx, request(at(10, 0), 60))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.StatusScheduled, a.Status)
	assert.Equal(t, int64(1), a.Version)
	assert.Equal(t, "user-9", a.CreatedBy)
	assert.Equal(t, h.now, a.CreatedAt)

	stored, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, stored)

	emitted := h.store.Emitted()
	require.Len(t, emitted, 1)
	assert.Equal(t, events.TypeBooked, emitted[0].Type)
	assert.Equal(t, a.ID, emitted[0].AppointmentID)
}

func TestBookValidation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name   string
		mutate func(*BookRequest)
		field  string
	}{
		{"missing agent", func(r *BookRequest) { r.AgentID = " " }, "agentId"},
		{"missing property", func(r *BookRequest) { r.PropertyID = "" }, "propertyId"},
		{"in the past", func(r *BookRequest) { r.ScheduledStart = at(6, 0) }, "scheduledStart"},
		{"inside lead time", func(r *BookRequest) { r.ScheduledStart = at(7, 30) }, "scheduledStart"},
		{"too short", func(r *BookRequest) { r.DurationMinutes = 10 }, "duration"},
		{"too long", func(r *BookRequest) { r.DurationMinutes = 241 }, "duration"},
		{"bad viewing type", func(r *BookRequest) { r.ViewingType = "drive_by" }, "viewingType"},
		{"no attendees", func(r *BookRequest) { r.AttendeeCount = 0 }, "attendeeCount"},
		{"too many attendees", func(r *BookRequest) { r.AttendeeCount = 11 }, "attendeeCount"},
		{"missing name", func(r *BookRequest) { r.ClientContact.Name = "" }, "clientContact.name"},
		{"missing email", func(r *BookRequest) { r.ClientContact.Email = "" }, "clientContact.email"},
		{"malformed email", func(r *BookRequest) { r.ClientContact.Email = "not-an-email" }, "clientContact.email"},
		{"display name email", func(r *BookRequest) { r.ClientContact.Email = "Ada <ada@example.com>" }, "clientContact.email"},
		{"malformed phone", func(r *BookRequest) { r.ClientContact.Phone = "call me" }, "clientContact.phone"},
		{"long notes", func(r *BookRequest) { r.Notes = strings.Repeat("x", 2001) }, "notes"},
		{"unknown property", func(r *BookRequest) { r.PropertyID = "prop-404" }, "propertyId"},
		{"unknown agent", func(r *BookRequest) { r.AgentID = "agent-404" }, "agentId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := request(at(10, 0), 60)
			tc.mutate(&req)
			_, _, err := h.engine.Book(context.Background(), req)
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Empty(t, h.store.Emitted())
}

func TestBookOutsideAvailability(t *testing.T) {
	h := newHarness(t)
	for _, req := range []BookRequest{
		request(at(8, 30), 60),
		request(at(16, 30), 60),
		request(at(11, 30), 60),
	} {
		_, _, err := h.engine.Book(context.Background(), req)
		var serr *model.SlotError
		require.ErrorAs(t, err, &serr)
		assert.Empty(t, serr.ConflictID)
	}
}

func TestBookConflict(t *testing.T) {
	h := newHarness(t)
	first := h.book(t, at(10, 0), 60)

	_, _, err := h.engine.Book(context.Background(), request(at(10, 30), 30))
	var serr *model.SlotError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, first.ID, serr.ConflictID)

	h.book(t, at(11, 0), 30)

	other := request(at(10, 0), 60)
	other.AgentID = "agent-2"
	_, created, err := h.engine.Book(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCancelledAppointmentFreesSlot(t *testing.T) {
	h := newHarness(t)
	first := h.book(t, at(10, 0), 60)
	h.transition(t, first, model.StatusCancelled)
	h.book(t, at(10, 0), 60)
}

func TestBookIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	req := request(at(10, 0), 60)
	req.IdempotencyKey = "key-1"

	first, created, err := h.engine.Book(context.Background(), req)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := h.engine.Book(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, h.store.Emitted(), 1)

	req.ScheduledStart = at(14, 0)
	_, _, err = h.engine.Book(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSimultaneousBookingsExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, errs[i] = h.engine.Book(context.Background(), request(at(10, 0), 60))
		}()
	}
	close(start)
	wg.Wait()

	var ok, slot int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrSlotUnavailable):
			slot++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, slot)
}

func TestConcurrentRandomBookingsNeverOverlap(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewPCG(7, 11))

	const n = 64
	reqs := make([]BookRequest, n)
	for i := range reqs {
		minutes := 15 * (1 + rng.IntN(8))
		startMin := 9*60 + 15*rng.IntN((8*60-minutes)/15+1)
		reqs[i] = request(day.Add(time.Duration(startMin)*time.Minute), minutes)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  []model.Appointment
		barrier = make(chan struct{})
	)
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-barrier
			a, _, err := h.engine.Book(context.Background(), req)
			if err != nil {
				if !errors.Is(err, model.ErrSlotUnavailable) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			booked = append(booked, a)
			mu.Unlock()
		}()
	}
	close(barrier)
	wg.Wait()

	require.NotEmpty(t, booked)
	active, err := h.store.ListActiveByAgent(context.Background(), agent, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, active, len(booked))
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			assert.False(t, conflict.Overlaps(active[i].Interval(), active[j].Interval()),
				"%s overlaps %s", active[i].ID, active[j].ID)
		}
	}
}

func TestTransitions(t *testing.T) {
	h := newHarness(t)
	a := h.book(t, at(10, 0), 60)

	_, err := h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: a.Version, Target: model.StatusInProgress})
	var terr *model.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.StatusScheduled, terr.From)

	unchanged, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, unchanged)

	a = h.transition(t, a, model.StatusConfirmed)
	a = h.transition(t, a, model.StatusInProgress)
	assert.Equal(t, int64(3), a.Version)
	require.NotNil(t, a.StartedAt)

	a = h.transition(t, a, model.StatusCompleted)
	require.NotNil(t, a.CompletedAt)
	for _, to := range model.Statuses {
		_, err := h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: a.Version, Target: to})
		assert.ErrorIs(t, err, model.ErrInvalidTransition, "completed -> %s", to)
	}

	var changes []events.Event
	for _, evt := range h.store.Emitted() {
		if evt.Type == events.TypeStatusChanged {
			changes = append(changes, evt)
		}
	}
	require.Len(t, changes, 3)
	assert.Equal(t, model.StatusInProgress, changes[2].PreviousStatus)
	assert.Equal(t, model.StatusCompleted, changes[2].NewStatus)
}

func TestTransitionErrors(t *testing.T) {
	h := newHarness(t)
	a := h.book(t, at(10, 0), 60)

	_, err := h.engine.Transition(context.Background(), TransitionRequest{ID: "missing", ExpectedVersion: 1, Target: model.StatusConfirmed})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: 7, Target: model.StatusConfirmed})
	var serr *model.StaleVersionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, int64(1), serr.Actual)

	_, err = h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: 1, Target: "archived"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestTransitionReasonLengthCountsRunes(t *testing.T) {
	h := newHarness(t)
	a := h.book(t, at(10, 0), 60)

	_, err := h.engine.Transition(context.Background(), TransitionRequest{
		ID: a.ID, ExpectedVersion: a.Version, Target: model.StatusCancelled, Reason: strings.Repeat("é", 2001),
	})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Field)

	reason := strings.Repeat("é", 1500)
	next, err := h.engine.Transition(context.Background(), TransitionRequest{
		ID: a.ID, ExpectedVersion: a.Version, Target: model.StatusCancelled, Reason: reason,
	})
	require.NoError(t, err)
	assert.Equal(t, reason, next.CancelReason)
}

func TestNoShowOnlyAfterStart(t *testing.T) {
	h := newHarness(t)
	a := h.transition(t, h.book(t, at(10, 0), 60), model.StatusConfirmed)

	_, err := h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: a.Version, Target: model.StatusNoShow})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	h.now = at(10, 20)
	next, err := h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: a.Version, Target: model.StatusNoShow, Reason: "client absent"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoShow, next.Status)
	assert.Equal(t, "client absent", next.CancelReason)
}

func TestSameStaleVersionExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	a := h.book(t, at(10, 0), 60)

	targets := []model.Status{model.StatusConfirmed, model.StatusCancelled}
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(targets))
	)
	for i, to := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: a.Version, Target: to})
		}()
	}
	close(start)
	wg.Wait()

	var ok, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrStaleVersion):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, stale)

	final, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
}

func TestConcurrentReschedulesSameVersionExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	a := h.book(t, at(10, 0), 60)

	starts := []time.Time{at(14, 0), at(15, 0)}
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(starts))
	)
	for i, newStart := range starts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = h.engine.Reschedule(context.Background(), RescheduleRequest{
				ID: a.ID, ExpectedVersion: a.Version, NewStart: newStart, NewDurationMinutes: 60,
			})
		}()
	}
	close(start)
	wg.Wait()

	winner := -1
	var stale int
	for i, err := range errs {
		switch {
		case err == nil:
			winner = i
		case errors.Is(err, model.ErrStaleVersion):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.NotEqual(t, -1, winner)
	assert.Equal(t, 1, stale)

	final, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	assert.True(t, final.ScheduledStart.Equal(starts[winner]))

	var rescheduled int
	for _, evt := range h.store.Emitted() {
		if evt.Type == events.TypeRescheduled {
			rescheduled++
		}
	}
	assert.Equal(t, 1, rescheduled)
}

func TestConcurrentBookAndRescheduleNeverOverlap(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewPCG(3, 5))

	var existing []model.Appointment
	for _, hour := range []int{9, 10, 11, 13, 14, 15} {
		existing = append(existing, h.book(t, at(hour, 0), 30))
	}

	randomSlot := func() (time.Time, int) {
		minutes := 15 * (1 + rng.IntN(8))
		startMin := 9*60 + 15*rng.IntN((8*60-minutes)/15+1)
		return day.Add(time.Duration(startMin) * time.Minute), minutes
	}

	type op struct {
		book       *BookRequest
		reschedule *RescheduleRequest
	}
	const n = 64
	ops := make([]op, n)
	for i := range ops {
		start, minutes := randomSlot()
		if rng.IntN(2) == 0 {
			req := request(start, minutes)
			ops[i] = op{book: &req}
			continue
		}
		target := existing[rng.IntN(len(existing))]
		ops[i] = op{reschedule: &RescheduleRequest{
			ID: target.ID, ExpectedVersion: target.Version, NewStart: start, NewDurationMinutes: minutes,
		}}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		moved   = map[string]int{}
		barrier = make(chan struct{})
	)
	for _, o := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-barrier
			if o.book != nil {
				_, _, err := h.engine.Book(context.Background(), *o.book)
				if err != nil && !errors.Is(err, model.ErrSlotUnavailable) {
					t.Errorf("book: unexpected error: %v", err)
				}
				return
			}
			_, err := h.engine.Reschedule(context.Background(), *o.reschedule)
			switch {
			case err == nil:
				mu.Lock()
				moved[o.reschedule.ID]++
				mu.Unlock()
			case errors.Is(err, model.ErrSlotUnavailable), errors.Is(err, model.ErrStaleVersion):
			default:
				t.Errorf("reschedule: unexpected error: %v", err)
			}
		}()
	}
	close(barrier)
	wg.Wait()

	for id, count := range moved {
		assert.Equal(t, 1, count, "%s rescheduled more than once from version 1", id)
	}
	active, err := h.store.ListActiveByAgent(context.Background(), agent, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(active), len(existing))
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			assert.False(t, conflict.Overlaps(active[i].Interval(), active[j].Interval()),
				"%s overlaps %s", active[i].ID, active[j].ID)
		}
	}
}

func TestRescheduleMovesInPlace(t *testing.T) {
	h := newHarness(t)
	a := h.transition(t, h.book(t, at(10, 0), 60), model.StatusConfirmed)

	moved, err := h.engine.Reschedule(context.Background(), RescheduleRequest{
		ID: a.ID, ExpectedVersion: a.Version, NewStart: at(10, 30), NewDurationMinutes: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ID)
	assert.Equal(t, model.StatusConfirmed, moved.Status)
	assert.Equal(t, a.Version+1, moved.Version)
	assert.True(t, moved.ScheduledStart.Equal(at(10, 30)))
	assert.Equal(t, 45, moved.DurationMinutes)

	emitted := h.store.Emitted()
	last := emitted[len(emitted)-1]
	assert.Equal(t, events.TypeRescheduled, last.Type)
	require.NotNil(t, last.PreviousStart)
	assert.True(t, last.PreviousStart.Equal(at(10, 0)))
	assert.Equal(t, 60, last.PreviousMinutes)
}

func TestRescheduleConflictLeavesOriginalIntact(t *testing.T) {
	h := newHarness(t)
	a := h.transition(t, h.book(t, at(10, 0), 60), model.StatusConfirmed)
	other := h.book(t, at(11, 0), 30)
	before := len(h.store.Emitted())

	_, err := h.engine.Reschedule(context.Background(), RescheduleRequest{
		ID: a.ID, ExpectedVersion: a.Version, NewStart: at(10, 45), NewDurationMinutes: 60,
	})
	var serr *model.SlotError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, other.ID, serr.ConflictID)

	after, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, after)
	assert.Equal(t, model.StatusConfirmed, after.Status)
	assert.Len(t, h.store.Emitted(), before)
}

func TestRescheduleErrors(t *testing.T) {
	h := newHarness(t)
	a := h.book(t, at(10, 0), 60)

	_, err := h.engine.Reschedule(context.Background(), RescheduleRequest{ID: a.ID, ExpectedVersion: 3, NewStart: at(14, 0), NewDurationMinutes: 60})
	assert.ErrorIs(t, err, model.ErrStaleVersion)

	_, err = h.engine.Reschedule(context.Background(), RescheduleRequest{ID: a.ID, ExpectedVersion: 1, NewStart: at(7, 15), NewDurationMinutes: 60})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.engine.Reschedule(context.Background(), RescheduleRequest{ID: a.ID, ExpectedVersion: 1, NewStart: at(12, 0), NewDurationMinutes: 30})
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)

	_, err = h.engine.Reschedule(context.Background(), RescheduleRequest{ID: "nope", ExpectedVersion: 1, NewStart: at(14, 0), NewDurationMinutes: 60})
	assert.ErrorIs(t, err, model.ErrNotFound)

	cancelled := h.transition(t, a, model.StatusCancelled)
	_, err = h.engine.Reschedule(context.Background(), RescheduleRequest{ID: a.ID, ExpectedVersion: cancelled.Version, NewStart: at(14, 0), NewDurationMinutes: 60})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestBusReceivesCommittedEvents(t *testing.T) {
	h := newHarness(t)
	ch, unsubscribe := h.bus.Subscribe(8)
	defer unsubscribe()

	a := h.book(t, at(10, 0), 60)
	h.transition(t, a, model.StatusConfirmed)
	_, _, err := h.engine.Book(context.Background(), request(at(10, 0), 30))
	require.Error(t, err)

	got := []events.Type{(<-ch).Type, (<-ch).Type}
	assert.Equal(t, []events.Type{events.TypeBooked, events.TypeStatusChanged}, got)
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s", evt.Type)
	default:
	}
}

type recordingMetrics struct {
	mu          sync.Mutex
	bookings    []string
	transitions []string
	lockWaits   int
}

func (m *recordingMetrics) ObserveBooking(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, string(model.Kind(err)))
}

func (m *recordingMetrics) ObserveTransition(from, to model.Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, fmt.Sprintf("%s>%s:%s", from, to, model.Kind(err)))
}

func (m *recordingMetrics) ObserveReschedule(error) {}

func (m *recordingMetrics) ObserveLockWait(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockWaits++
}

func TestMetricsObserved(t *testing.T) {
	rec := &recordingMetrics{}
	h := newHarness(t, WithMetrics(rec))

	a := h.book(t, at(10, 0), 60)
	_, _, _ = h.engine.Book(context.Background(), request(at(10, 0), 60))
	_, _ = h.engine.Transition(context.Background(), TransitionRequest{ID: a.ID, ExpectedVersion: 1, Target: model.StatusInProgress})

	assert.Equal(t, []string{"", "slot_unavailable"}, rec.bookings)
	assert.Equal(t, []string{"scheduled>in_progress:invalid_transition"}, rec.transitions)
	assert.Equal(t, 3, rec.lockWaits)
}
