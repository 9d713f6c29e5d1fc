package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within a day, zone-agnostic.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String formats as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Add returns the time of day d minutes later. It may roll past midnight;
// callers supply intervals that keep it within the same day.
func (t TimeOfDay) Add(d int) TimeOfDay {
	total := t.Minutes() + d
	return TimeOfDay{Hour: total / 60 % 24, Minute: total % 60}
}

// Before reports whether t is earlier than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.Minutes() < other.Minutes()
}

// After reports whether t is later than other.
func (t TimeOfDay) After(other TimeOfDay) bool {
	return t.Minutes() > other.Minutes()
}

// OnDate pins the time of day to a calendar date in the given zone.
func (t TimeOfDay) OnDate(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Interval is a contiguous working window within a day, e.g. a morning shift.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseIntervals parses a comma-separated list of "HH:MM-HH:MM" windows,
// the format the environment collaborator uses ("08:30-12:15,15:45-18:00").
func ParseIntervals(s string) ([]Interval, error) {
	var intervals []Interval
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		bounds := strings.Split(raw, "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid interval %q", raw)
		}
		start, err := ParseTimeOfDay(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("interval %q: %w", raw, err)
		}
		end, err := ParseTimeOfDay(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, fmt.Errorf("interval %q: %w", raw, err)
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	if len(intervals) == 0 {
		return nil, fmt.Errorf("no working intervals in %q", s)
	}
	return intervals, nil
}

// ParseWeekdays parses ISO weekday numbers "1,2,3,4,5" (1=Monday, 7=Sunday)
// into a set keyed by time.Weekday.
func ParseWeekdays(s string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 7 {
			return nil, fmt.Errorf("invalid weekday %q", raw)
		}
		days[time.Weekday(n%7)] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no business weekdays in %q", s)
	}
	return days, nil
}

// Config is the immutable weekly schedule description. Construct with New;
// a zero Config is not usable.
type Config struct {
	intervals    []Interval
	slotDuration int
	weekdays     map[time.Weekday]bool
	location     *time.Location
}

// New validates and builds a schedule Config. Intervals must be supplied
// sorted and non-overlapping; slotDuration is in minutes; timezone is an
// IANA zone name; weekdays may be nil for the Monday-Friday default.
func New(intervals []Interval, slotDuration int, timezone string, weekdays map[time.Weekday]bool) (*Config, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("at least one working interval required")
	}
	for _, iv := range intervals {
		if !iv.Start.Before(iv.End) {
			return nil, fmt.Errorf("interval %s-%s: start must precede end", iv.Start, iv.End)
		}
	}
	if slotDuration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %d", slotDuration)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if weekdays == nil {
		weekdays = map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		}
	}
	return &Config{
		intervals:    append([]Interval(nil), intervals...),
		slotDuration: slotDuration,
		weekdays:     weekdays,
		location:     loc,
	}, nil
}

// WorkingIntervals returns a copy of the configured windows.
func (c *Config) WorkingIntervals() []Interval {
	return append([]Interval(nil), c.intervals...)
}

// SlotDuration returns the slot length.
func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.slotDuration) * time.Minute
}

// SlotMinutes returns the slot length in minutes.
func (c *Config) SlotMinutes() int {
	return c.slotDuration
}

// Location returns the shop timezone.
func (c *Config) Location() *time.Location {
	return c.location
}

// IsBusinessDay reports whether the date falls on a configured weekday.
func (c *Config) IsBusinessDay(date time.Time) bool {
	return c.weekdays[date.Weekday()]
}
