// Package scheduling computes follow-up run times in the tenant's time zone.
package scheduling

import "time"

const businessDayHour = 9
const businessDayMinute = 30

// NextBusinessDayRunAt returns 09:30 local time on the next weekday strictly
// after now, converted back to the instant in loc.
func NextBusinessDayRunAt(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	cursor := local

	for {
		cursor = cursor.AddDate(0, 0, 1)
		if wd := cursor.Weekday(); wd != time.Saturday && wd != time.Sunday {
			break
		}
	}

	return time.Date(cursor.Year(), cursor.Month(), cursor.Day(),
		businessDayHour, businessDayMinute, 0, 0, loc)
}

// MissedCallFollowUpRunTimes returns the two follow-up instants for a missed
// call: two hours out, then the next business day at 09:30 local time.
func MissedCallFollowUpRunTimes(now time.Time, loc *time.Location) []time.Time {
	return []time.Time{
		now.Add(2 * time.Hour),
		NextBusinessDayRunAt(now, loc),
	}
}
