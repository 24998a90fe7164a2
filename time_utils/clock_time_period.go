package timeutils

import "time"

// ClockTimePeriod represents a period of time of day, e.g. "11pm to 5am". It may cross midnight, in which
// case End is considered to be earlier in the day than Start.
type ClockTimePeriod struct {
	Start ClockTime
	End   ClockTime
}

// wraps returns true if the period crosses midnight, i.e. the end clock time is not after the start clock time.
func (p *ClockTimePeriod) wraps() bool {
	return !p.End.after(p.Start)
}

// AbsolutePeriodOnDate anchors the ClockTimePeriod to a specific calendar date, returning the absolute
// Period that starts on that date. If the period crosses midnight, the End instant falls on the following day.
func (p *ClockTimePeriod) AbsolutePeriodOnDate(year int, month time.Month, day int) Period {
	start := p.Start.OnDate(year, month, day)
	end := p.End.OnDate(year, month, day)
	if p.wraps() {
		end = end.AddDate(0, 0, 1)
	}
	return Period{Start: start, End: end}
}

// AbsolutePeriod returns the concrete Period instance that contains `t`, using `t` to determine which
// calendar day the period should be anchored to. If `t` is outside of the ClockTimePeriod then `ok` is
// returned as false.
//
// This is inclusive of Start, exclusive of End, and correctly handles periods that cross midnight - e.g. a
// ClockTimePeriod of "23:00 to 05:00" contains both "23:30" and "04:30" on the same overnight window.
func (p *ClockTimePeriod) AbsolutePeriod(t time.Time) (Period, bool) {

	tLocal := t.In(p.Start.Location)

	year, month, day := tLocal.Date()
	todayPeriod := p.AbsolutePeriodOnDate(year, month, day)
	if todayPeriod.Contains(t) {
		return todayPeriod, true
	}

	if p.wraps() {
		// the period may also be the overnight tail of yesterday's window, e.g. "04:30" belongs to the
		// window anchored on the previous day when Start is 23:00 and End is 05:00.
		yesterday := tLocal.AddDate(0, 0, -1)
		y, m, d := yesterday.Date()
		yesterdayPeriod := p.AbsolutePeriodOnDate(y, m, d)
		if yesterdayPeriod.Contains(t) {
			return yesterdayPeriod, true
		}
	}

	return Period{}, false
}

// Contains returns true if t is within the ClockTimePeriod, inclusive of Start, exclusive of End.
func (p *ClockTimePeriod) Contains(t time.Time) bool {
	_, ok := p.AbsolutePeriod(t)
	return ok
}
