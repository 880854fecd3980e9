package model

import "time"

// DailyUsage is the per-user AI call counter for one local calendar day.
type DailyUsage struct {
	UserID string
	Day    time.Time // midnight of the local day
	Count  int
}

// DayOf truncates t to midnight in loc. The result is the counter key.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
