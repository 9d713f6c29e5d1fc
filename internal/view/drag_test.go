package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arvera/internal/booking"
	"arvera/internal/schedule"
)

type fakeMover struct {
	err       error
	calls     int
	lastID    string
	lastStart time.Time
}

func (f *fakeMover) UpdateAppointmentTimes(ctx context.Context, id string, start, end time.Time) error {
	f.calls++
	f.lastID = id
	f.lastStart = start
	return f.err
}

func dragFixture(t *testing.T) (*Manager, *booking.Store, schedule.Slot, schedule.Slot) {
	t.Helper()
	api := &stubAPI{}
	m, store := newTestManager(t, api)

	start, end, err := m.VisibleRange()
	require.NoError(t, err)
	cfg, _ := m.Schedule()
	day := cfg.NextBusinessDay(start)
	from := cfg.SlotAt(day, mustTimeOfDay(t, "08:30"))
	to := cfg.SlotAt(day, mustTimeOfDay(t, "10:00"))

	api.appointments = []booking.Appointment{{
		ID: "a1", Start: from.StartInstant.UTC(), End: from.EndInstant.UTC(),
	}}
	require.NoError(t, store.Load(context.Background(), start, end))
	return m, store, from, to
}

func TestDragTransitions(t *testing.T) {
	_, store, _, to := dragFixture(t)
	mover := &fakeMover{}
	d := NewDragController(store, mover, testLogger())

	assert.Equal(t, DragIdle, d.State())

	// Begin and Drop are invalid before arming.
	assert.Error(t, d.Begin())
	assert.Error(t, d.Drop(context.Background(), to))

	require.NoError(t, d.Arm("a1"))
	assert.Equal(t, DragArmed, d.State())
	assert.Error(t, d.Arm("a1"), "double arm is invalid")

	require.NoError(t, d.Begin())
	assert.Equal(t, DragDragging, d.State())

	require.NoError(t, d.Drop(context.Background(), to))
	assert.Equal(t, DragIdle, d.State(), "controller returns to idle after a drop")
	assert.Equal(t, 1, mover.calls)
}

func TestDragArmUnknownAppointment(t *testing.T) {
	_, store, _, _ := dragFixture(t)
	d := NewDragController(store, &fakeMover{}, testLogger())
	assert.ErrorIs(t, d.Arm("ghost"), booking.ErrNotFound)
}

func TestDragCancelLeavesStoreUntouched(t *testing.T) {
	_, store, from, _ := dragFixture(t)
	mover := &fakeMover{}
	d := NewDragController(store, mover, testLogger())

	require.NoError(t, d.Arm("a1"))
	require.NoError(t, d.Begin())
	d.Cancel()

	assert.Equal(t, DragIdle, d.State())
	assert.Equal(t, 0, mover.calls)
	got, _ := store.Get("a1")
	assert.Equal(t, from.StartInstant.UTC(), got.Start)
}

func TestCommitMoveSuccess(t *testing.T) {
	_, store, _, to := dragFixture(t)
	mover := &fakeMover{}

	require.NoError(t, CommitMove(context.Background(), store, mover, testLogger(), "a1", to))

	got, _ := store.Get("a1")
	assert.Equal(t, to.StartInstant.UTC(), got.Start)
	assert.Equal(t, to.EndInstant.UTC(), got.End)
	assert.Equal(t, booking.OriginRemote, got.Origin, "confirmed move is no longer pending")
	assert.Equal(t, "a1", mover.lastID)
}

func TestCommitMoveRollsBackOnRejection(t *testing.T) {
	_, store, from, to := dragFixture(t)
	mover := &fakeMover{err: errors.New("slot taken")}

	err := CommitMove(context.Background(), store, mover, testLogger(), "a1", to)
	require.Error(t, err)

	got, _ := store.Get("a1")
	assert.Equal(t, from.StartInstant.UTC(), got.Start, "rejected move restores the original time")
	assert.Equal(t, booking.OriginRemote, got.Origin)
}

func TestCommitMoveUnknownAppointment(t *testing.T) {
	_, store, _, to := dragFixture(t)
	mover := &fakeMover{}

	err := CommitMove(context.Background(), store, mover, testLogger(), "ghost", to)
	assert.ErrorIs(t, err, booking.ErrNotFound)
	assert.Equal(t, 0, mover.calls, "no server call without a local appointment")
}
