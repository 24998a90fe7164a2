package timeutils

import "time"

// ClockTime represents a time of day in the given locale, without a date.
type ClockTime struct {
	Hour     int
	Minute   int
	Second   int
	Location *time.Location
}

// OnDate returns a time with the given clock time on the given date
func (c *ClockTime) OnDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, c.Hour, c.Minute, c.Second, 0, c.Location)
}

// secondsSinceMidnight returns the number of seconds since midnight that this clock time represents.
func (c *ClockTime) secondsSinceMidnight() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

// after returns true if c falls later in the day than other.
func (c *ClockTime) after(other ClockTime) bool {
	return c.secondsSinceMidnight() > other.secondsSinceMidnight()
}
