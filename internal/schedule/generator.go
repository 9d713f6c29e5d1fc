package schedule

// Times generates the ordered slot start times for one business day.
// Within each working interval slots start at the interval start and step
// by the slot duration; a slot starting exactly at the interval end is
// still emitted. Intervals are walked in declaration order, so the output
// order follows the configured windows rather than a global sort.
func (c *Config) Times() []TimeOfDay {
	var times []TimeOfDay
	for _, iv := range c.intervals {
		for t := iv.Start; !t.After(iv.End); t = t.Add(c.slotDuration) {
			times = append(times, t)
		}
	}
	return times
}
