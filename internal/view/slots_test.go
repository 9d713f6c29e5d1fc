package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arvera/internal/booking"
	"arvera/internal/citasapi"
)

func TestFreeSlotsByDay(t *testing.T) {
	api := &stubAPI{}
	m, store := newTestManager(t, api)

	start, end, err := m.VisibleRange()
	require.NoError(t, err)
	cfg, _ := m.Schedule()
	firstDay := cfg.NextBusinessDay(start)
	taken := cfg.SlotAt(firstDay, mustTimeOfDay(t, "08:30"))

	api.appointments = []booking.Appointment{{
		ID: "a1", Start: taken.StartInstant.UTC(), End: taken.EndInstant.UTC(),
	}}
	require.NoError(t, store.Load(context.Background(), start, end))

	byDay, err := m.FreeSlotsByDay()
	require.NoError(t, err)
	require.Len(t, byDay, 7)

	// First day lost its 08:30 slot, the rest keep all ten.
	assert.Len(t, byDay[0].Slots, 9)
	for _, day := range byDay[1:] {
		assert.Len(t, day.Slots, 10)
	}
	for _, slot := range byDay[0].Slots {
		assert.NotEqual(t, "08:30", slot.Start.String())
	}

	// Grouped per day in ascending (date, time) order.
	for i := 1; i < len(byDay); i++ {
		assert.True(t, byDay[i-1].Date.Before(byDay[i].Date))
	}
	first := byDay[0].Slots
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].StartInstant.Before(first[i].StartInstant))
	}
}

type scriptedAvailability struct {
	responses [][]citasapi.FreeSlotDescriptor
	err       error
	calls     int
	ranges    [][2]time.Time
}

func (s *scriptedAvailability) ListFreeSlots(ctx context.Context, rangeStart, rangeEnd time.Time, slotMinutes int, horarios, timezone string) ([]citasapi.FreeSlotDescriptor, error) {
	s.ranges = append(s.ranges, [2]time.Time{rangeStart, rangeEnd})
	idx := s.calls
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return nil, nil
}

func futureSlot(daysAhead int) citasapi.FreeSlotDescriptor {
	start := time.Now().UTC().AddDate(0, 0, daysAhead).Truncate(time.Hour)
	return citasapi.FreeSlotDescriptor{
		Fecha:     start.Format("2006-01-02"),
		StartTime: start,
		EndTime:   start.Add(45 * time.Minute),
	}
}

func TestSearchFirstRangeHasSlots(t *testing.T) {
	m, _ := newTestManager(t, &stubAPI{})

	late := futureSlot(5)
	early := futureSlot(3)
	avail := &scriptedAvailability{responses: [][]citasapi.FreeSlotDescriptor{{late, early}}}

	got, err := m.Search(context.Background(), avail, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, avail.calls)
	// Ascending by start time regardless of response order.
	assert.True(t, got[0].StartTime.Before(got[1].StartTime))
}

func TestSearchAdvancesUntilSlotsFound(t *testing.T) {
	m, _ := newTestManager(t, &stubAPI{})

	avail := &scriptedAvailability{responses: [][]citasapi.FreeSlotDescriptor{
		nil, nil, {futureSlot(20)},
	}}

	got, err := m.Search(context.Background(), avail, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, avail.calls)

	// Each attempt queried a later range than the previous one.
	for i := 1; i < len(avail.ranges); i++ {
		assert.True(t, avail.ranges[i-1][0].Before(avail.ranges[i][0]))
	}
}

func TestSearchExhaustsLookAhead(t *testing.T) {
	m, _ := newTestManager(t, &stubAPI{})

	avail := &scriptedAvailability{}
	_, err := m.Search(context.Background(), avail, time.Now())
	assert.ErrorIs(t, err, ErrNoAvailability)
	assert.Equal(t, lookAheadRanges+1, avail.calls, "initial range plus the look-ahead cap")
}

func TestSearchDropsSameDaySlots(t *testing.T) {
	m, _ := newTestManager(t, &stubAPI{})

	today := citasapi.FreeSlotDescriptor{
		Fecha:     time.Now().UTC().Format("2006-01-02"),
		StartTime: time.Now().UTC().Add(time.Minute),
	}
	avail := &scriptedAvailability{responses: [][]citasapi.FreeSlotDescriptor{
		{today, futureSlot(4)},
	}}

	got, err := m.Search(context.Background(), avail, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1, "same-day slots are not offered")
	assert.Equal(t, futureSlot(4).Fecha, got[0].Fecha)
}

func TestSearchPropagatesBackendError(t *testing.T) {
	m, _ := newTestManager(t, &stubAPI{})

	avail := &scriptedAvailability{err: errors.New("availability api down")}
	_, err := m.Search(context.Background(), avail, time.Now())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoAvailability)
	assert.Equal(t, 1, avail.calls, "backend errors stop the look-ahead")
}
