package services

import "time"

// Clock supplies the current time in the clinic's location.
type Clock interface {
	Now() time.Time
	// Today is midnight of the current day in the clinic's location.
	Today() time.Time
}

type SystemClock struct {
	loc *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{loc: loc}
}

func (c SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c SystemClock) Today() time.Time {
	return StartOfDay(c.Now())
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
