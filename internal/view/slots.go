package view

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"arvera/internal/citasapi"
	"arvera/internal/schedule"
)

// ErrNoAvailability means the look-ahead search ran out of ranges to try
// without finding a single free slot.
var ErrNoAvailability = errors.New("no free slots within the search window")

// lookAheadRanges caps how many further ranges the public booking search
// advances through before reporting exhaustion.
const lookAheadRanges = 4

// DaySlots groups the free slots of one business day.
type DaySlots struct {
	Date  time.Time
	Slots []schedule.Slot
}

// FreeSlotsByDay computes the free slots of the visible range from the
// local store snapshot, grouped per day in (date, time) order.
func (m *Manager) FreeSlotsByDay() ([]DaySlots, error) {
	cfg, days, err := m.visibleDays()
	if err != nil {
		return nil, err
	}

	free := cfg.FreeSlots(days, cfg.Times(), occupants(m.store.Snapshot()))

	byDate := make(map[string][]schedule.Slot)
	for _, slot := range free {
		key := slot.Date.Format("2006-01-02")
		byDate[key] = append(byDate[key], slot)
	}

	var out []DaySlots
	for _, day := range days {
		slots := byDate[day.Format("2006-01-02")]
		if len(slots) > 0 {
			out = append(out, DaySlots{Date: day, Slots: slots})
		}
	}
	return out, nil
}

// AvailabilitySource is the remote availability collaborator used by the
// public booking search.
type AvailabilitySource interface {
	ListFreeSlots(ctx context.Context, rangeStart, rangeEnd time.Time, slotMinutes int, horarios, timezone string) ([]citasapi.FreeSlotDescriptor, error)
}

// Search finds bookable slots for the public page. It queries one range at
// a time starting at anchor; when a range comes back empty it advances and
// retries, up to lookAheadRanges ranges, then reports ErrNoAvailability.
// Slots starting before tomorrow are dropped: same-day self-booking is not
// offered.
func (m *Manager) Search(ctx context.Context, avail AvailabilitySource, anchor time.Time) ([]citasapi.FreeSlotDescriptor, error) {
	m.mu.Lock()
	cfg, rangeLen := m.cfg, m.rangeLen
	m.mu.Unlock()
	if cfg == nil {
		return nil, ErrConfigUnavailable
	}

	loc := cfg.Location()
	horarios := intervalsParam(cfg)
	tomorrow := time.Now().In(loc).AddDate(0, 0, 1)
	tomorrow = time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, loc)

	anchor = cfg.NextBusinessDay(anchor)
	for attempt := 0; attempt <= lookAheadRanges; attempt++ {
		days := cfg.BusinessDays(anchor, rangeLen)
		first, last := days[0], days[len(days)-1]

		descriptors, err := avail.ListFreeSlots(ctx, first, last, cfg.SlotMinutes(), horarios, loc.String())
		if err != nil {
			return nil, err
		}

		var usable []citasapi.FreeSlotDescriptor
		for _, d := range descriptors {
			if !d.StartTime.IsZero() && !d.StartTime.In(loc).Before(tomorrow) {
				usable = append(usable, d)
			}
		}
		if len(usable) > 0 {
			sort.Slice(usable, func(i, j int) bool {
				return usable[i].StartTime.Before(usable[j].StartTime)
			})
			return usable, nil
		}

		anchor = cfg.AdvanceRange(anchor, 1, rangeLen)
	}
	return nil, ErrNoAvailability
}

// intervalsParam renders the working intervals in the availability API's
// query format ("08:30-12:15,15:45-18:00").
func intervalsParam(cfg *schedule.Config) string {
	var parts []string
	for _, iv := range cfg.WorkingIntervals() {
		parts = append(parts, iv.Start.String()+"-"+iv.End.String())
	}
	return strings.Join(parts, ",")
}
