// Package view holds the thin adapters that turn schedule and store state
// into renderable calendar structures. No scheduling logic lives here.
package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"arvera/internal/booking"
	"arvera/internal/schedule"
)

// ErrConfigUnavailable means the schedule configuration has not resolved
// yet. Callers defer or retry; they never crash on it.
var ErrConfigUnavailable = errors.New("schedule configuration not yet available")

const lastViewPrefKey = "last_active_view"

// PrefStore persists small UI preferences.
type PrefStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Manager owns the view state: the visible range cursor, the active view
// preference, and access to the shared store. The schedule config may
// arrive after construction; views return ErrConfigUnavailable until then.
type Manager struct {
	store  *booking.Store
	prefs  PrefStore
	logger *zerolog.Logger

	mu       sync.Mutex
	cfg      *schedule.Config
	rangeLen int
	cursor   *Cursor
}

// NewManager builds a manager without a schedule; call SetSchedule once the
// configuration collaborator resolves.
func NewManager(store *booking.Store, prefs PrefStore, logger *zerolog.Logger) *Manager {
	return &Manager{store: store, prefs: prefs, logger: logger}
}

// SetSchedule installs the resolved schedule configuration and anchors the
// cursor at the first business day from today.
func (m *Manager) SetSchedule(cfg *schedule.Config, rangeLen int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rangeLen <= 0 {
		rangeLen = 7
	}
	m.cfg = cfg
	m.rangeLen = rangeLen
	m.cursor = NewCursor(cfg, time.Now().In(cfg.Location()), rangeLen)
}

// Schedule returns the resolved config or ErrConfigUnavailable.
func (m *Manager) Schedule() (*schedule.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, ErrConfigUnavailable
	}
	return m.cfg, nil
}

// VisibleRange returns the instant range the cursor currently covers.
func (m *Manager) VisibleRange() (time.Time, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor == nil {
		return time.Time{}, time.Time{}, ErrConfigUnavailable
	}
	start, end := m.cursor.Range()
	return start, end, nil
}

// visibleDays snapshots the schedule and the displayed days in one critical
// section, so a concurrent Page or JumpTo cannot move the anchor mid-render.
func (m *Manager) visibleDays() (*schedule.Config, []time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, nil, ErrConfigUnavailable
	}
	return m.cfg, m.cursor.Days(), nil
}

// Reload refreshes the store for the visible range. Used as the sync
// controller's reload hook and after mutations.
func (m *Manager) Reload(ctx context.Context) error {
	start, end, err := m.VisibleRange()
	if err != nil {
		return err
	}
	return m.store.Load(ctx, start, end)
}

// Page moves the visible range and reloads the store for it.
func (m *Manager) Page(ctx context.Context, pages int) error {
	m.mu.Lock()
	if m.cursor == nil {
		m.mu.Unlock()
		return ErrConfigUnavailable
	}
	m.cursor.Page(pages, time.Now().In(m.cfg.Location()))
	m.mu.Unlock()
	return m.Reload(ctx)
}

// JumpTo moves the visible range to the one containing date and reloads.
func (m *Manager) JumpTo(ctx context.Context, date time.Time) error {
	m.mu.Lock()
	if m.cursor == nil {
		m.mu.Unlock()
		return ErrConfigUnavailable
	}
	m.cursor.SetAnchor(date)
	m.mu.Unlock()
	return m.Reload(ctx)
}

// ActiveView returns the last active view name, defaulting to "slots".
func (m *Manager) ActiveView() string {
	v, err := m.prefs.Get(lastViewPrefKey)
	if err != nil || v == "" {
		return "slots"
	}
	return v
}

// SetActiveView stores the view preference; failures are logged only,
// the preference is ephemeral.
func (m *Manager) SetActiveView(name string) {
	if err := m.prefs.Set(lastViewPrefKey, name); err != nil {
		m.logger.Debug().Err(err).Msg("persist view preference failed")
	}
}

// Cell is one calendar grid cell: a slot, free or holding an appointment.
type Cell struct {
	Slot        schedule.Slot
	Appointment *booking.Appointment // nil when free
	Pending     bool                 // true for an unconfirmed local move
}

// Row is one slot time across all visible days.
type Row struct {
	Time  string
	Cells []Cell
}

// Grid is the weekly calendar: day headers crossed with slot rows.
type Grid struct {
	Days  []time.Time
	Times []string
	Rows  []Row
}

// CalendarGrid renders the visible range as a grid of free/busy cells.
func (m *Manager) CalendarGrid() (*Grid, error) {
	cfg, days, err := m.visibleDays()
	if err != nil {
		return nil, err
	}

	times := cfg.Times()
	appointments := m.store.Snapshot()
	occupancy := cfg.Occupancy(days, times, occupants(appointments))

	grid := &Grid{Days: days}
	for _, t := range times {
		grid.Times = append(grid.Times, t.String())
	}
	for _, t := range times {
		row := Row{Time: t.String()}
		for _, day := range days {
			slot := cfg.SlotAt(day, t)
			cell := Cell{Slot: slot}
			if occ, busy := occupancy[slot.Key()]; busy {
				appt := occ.(*booking.Appointment)
				cell.Appointment = appt
				cell.Pending = appt.Origin == booking.OriginLocalPending
			}
			row.Cells = append(row.Cells, cell)
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid, nil
}

// Stats summarizes the visible range for the dashboard sidebar.
type Stats struct {
	Today            int
	Week             int
	OccupancyPercent int
	TopService       string
}

// WeekStats computes appointment counts and slot occupancy for the visible
// range.
func (m *Manager) WeekStats() (*Stats, error) {
	cfg, days, err := m.visibleDays()
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	today := time.Now().In(loc).Format("2006-01-02")
	inWeek := make(map[string]bool, len(days))
	for _, d := range days {
		inWeek[d.Format("2006-01-02")] = true
	}

	stats := &Stats{}
	services := make(map[string]int)
	for _, a := range m.store.Snapshot() {
		if a.Start.IsZero() {
			continue
		}
		date := a.Start.In(loc).Format("2006-01-02")
		if date == today {
			stats.Today++
		}
		if inWeek[date] {
			stats.Week++
		}
		if a.Service != "" {
			services[a.Service]++
		}
	}

	totalSlots := len(cfg.Times()) * len(days)
	if totalSlots > 0 {
		stats.OccupancyPercent = stats.Week * 100 / totalSlots
	}

	best := 0
	for service, n := range services {
		if n > best {
			best = n
			stats.TopService = service
		}
	}
	return stats, nil
}

func occupants(appointments []booking.Appointment) []schedule.Occupant {
	out := make([]schedule.Occupant, len(appointments))
	for i := range appointments {
		out[i] = &appointments[i]
	}
	return out
}
