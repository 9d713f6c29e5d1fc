package view

import (
	"time"

	"arvera/internal/schedule"
)

// Cursor tracks the first business day of the displayed range and pages by
// whole range lengths. Paging backward is clamped at the range containing
// today, matching the calendar's navigation rules.
type Cursor struct {
	cfg      *schedule.Config
	rangeLen int
	anchor   time.Time
}

// NewCursor anchors the cursor to the first business day on or after start.
func NewCursor(cfg *schedule.Config, start time.Time, rangeLen int) *Cursor {
	if rangeLen <= 0 {
		rangeLen = 7
	}
	return &Cursor{
		cfg:      cfg,
		rangeLen: rangeLen,
		anchor:   cfg.NextBusinessDay(start),
	}
}

// Anchor returns the current first business day.
func (c *Cursor) Anchor() time.Time {
	return c.anchor
}

// Days returns the business days of the displayed range.
func (c *Cursor) Days() []time.Time {
	return c.cfg.BusinessDays(c.anchor, c.rangeLen)
}

// Range returns the half-open instant range covering the displayed days,
// from the first day's midnight to the midnight after the last day, in the
// shop timezone.
func (c *Cursor) Range() (time.Time, time.Time) {
	days := c.Days()
	loc := c.cfg.Location()
	first := days[0]
	last := days[len(days)-1]
	start := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return start, end
}

// Page moves the cursor by pages whole ranges. Backward moves never go
// before the range anchored at today.
func (c *Cursor) Page(pages int, today time.Time) {
	next := c.cfg.AdvanceRange(c.anchor, pages, c.rangeLen)
	floor := c.cfg.NextBusinessDay(today)
	if next.Before(floor) {
		next = floor
	}
	c.anchor = next
}

// SetAnchor jumps the cursor to the range containing the given date.
func (c *Cursor) SetAnchor(date time.Time) {
	c.anchor = c.cfg.NextBusinessDay(date)
}
