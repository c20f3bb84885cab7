package services

import "time"

// clockNow returns f() in UTC, or the wall clock when f is nil.
func clockNow(f func() time.Time) time.Time {
	if f != nil {
		return f().UTC()
	}
	return time.Now().UTC()
}
