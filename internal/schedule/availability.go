package schedule

import "time"

// Occupant is anything that can claim a slot by its start instant. Booking
// appointments satisfy it; the matcher stays decoupled from their fields.
type Occupant interface {
	// StartInstant returns the UTC start, or the zero time when the record
	// carries no usable start (such records never occupy a slot).
	StartInstant() time.Time
}

// SlotKey identifies one cell of the calendar grid: a date and a slot
// start time, both in the shop timezone.
type SlotKey struct {
	Date  string // "2006-01-02"
	Start string // "15:04"
}

// Slot is one bookable unit. Ephemeral: recomputed per render, never stored.
type Slot struct {
	Date         time.Time
	Start        TimeOfDay
	StartInstant time.Time
	EndInstant   time.Time
}

// Key returns the grid key for the slot.
func (s Slot) Key() SlotKey {
	return SlotKey{Date: s.Date.Format("2006-01-02"), Start: s.Start.String()}
}

// SlotAt materializes the slot for a date and start time in the shop zone.
func (c *Config) SlotAt(date time.Time, start TimeOfDay) Slot {
	startInstant := start.OnDate(date, c.location)
	return Slot{
		Date:         date,
		Start:        start,
		StartInstant: startInstant,
		EndInstant:   startInstant.Add(c.SlotDuration()),
	}
}

// Occupancy cross-references appointments against the dates x times grid.
// An occupant claims the slot whose half-open window [start, start+duration)
// contains its start instant converted to the shop zone; its full duration
// does not matter. When two occupants claim the same slot the one earlier
// in the supplied order wins. Occupants with a zero start never match.
func (c *Config) Occupancy(dates []time.Time, times []TimeOfDay, occupants []Occupant) map[SlotKey]Occupant {
	result := make(map[SlotKey]Occupant)
	for _, date := range dates {
		for _, start := range times {
			slot := c.SlotAt(date, start)
			for _, occ := range occupants {
				instant := occ.StartInstant()
				if instant.IsZero() {
					continue
				}
				local := instant.In(c.location)
				if !local.Before(slot.StartInstant) && local.Before(slot.EndInstant) {
					result[slot.Key()] = occ
					break
				}
			}
		}
	}
	return result
}

// FreeSlots returns every (date, time) cell with no occupant, ordered by
// date and then slot time.
func (c *Config) FreeSlots(dates []time.Time, times []TimeOfDay, occupants []Occupant) []Slot {
	occupied := c.Occupancy(dates, times, occupants)
	var free []Slot
	for _, date := range dates {
		for _, start := range times {
			slot := c.SlotAt(date, start)
			if _, busy := occupied[slot.Key()]; !busy {
				free = append(free, slot)
			}
		}
	}
	return free
}
