package schedule

import "time"

// NextBusinessDay returns date unchanged when it already falls on a
// business day, otherwise the next date that does.
func (c *Config) NextBusinessDay(date time.Time) time.Time {
	for !c.IsBusinessDay(date) {
		date = date.AddDate(0, 0, 1)
	}
	return date
}

// BusinessDays returns count strictly increasing business days, beginning
// at the first business day on or after start.
func (c *Config) BusinessDays(start time.Time, count int) []time.Time {
	days := make([]time.Time, 0, count)
	day := c.NextBusinessDay(start)
	for len(days) < count {
		days = append(days, day)
		day = c.NextBusinessDay(day.AddDate(0, 0, 1))
	}
	return days
}

// AdvanceRange moves the anchor by pages whole ranges of rangeLen calendar
// days and re-normalizes onto a business day. Anchors that are already
// business days round-trip exactly under forward-then-back paging.
func (c *Config) AdvanceRange(anchor time.Time, pages, rangeLen int) time.Time {
	return c.NextBusinessDay(anchor.AddDate(0, 0, pages*rangeLen))
}
