package calendar

import "time"

// Window is the weekly opening of one weekday. Close < Open wraps past
// midnight into the following day; Close == Open means closed.
type Window struct {
	Open  int
	Close int
}

// Override is a date exception. A nil bound defaults to the start or end of
// the day respectively.
type Override struct {
	Blocked bool
	Open    *int
	Close   *int
}

// Wraps reports whether the window spills into the next day.
func (w Window) Wraps() bool { return Clamp(w.Close) < Clamp(w.Open) }

// ResolveDay combines the previous and current weekday windows with the
// date's overrides and returns the open intervals. A nil result means the
// day is closed. prev and cur may be nil when the weekday has no rule.
func ResolveDay(prev, cur *Window, overrides []Override) []Interval {
	var windows []Interval

	if prev != nil && prev.Wraps() {
		windows = append(windows, NewInterval(0, prev.Close))
	}
	if cur != nil {
		lo, hi := Clamp(cur.Open), Clamp(cur.Close)
		switch {
		case hi > lo:
			windows = append(windows, Interval{Open: lo, Close: hi})
		case hi < lo:
			windows = append(windows, Interval{Open: lo, Close: MinutesPerDay})
		}
	}

	windows = Merge(windows)
	if len(windows) == 0 {
		return nil
	}

	for _, o := range overrides {
		if o.Blocked {
			return nil
		}
	}
	for _, o := range overrides {
		lo, hi := 0, MinutesPerDay
		if o.Open != nil {
			lo = *o.Open
		}
		if o.Close != nil {
			hi = *o.Close
		}
		windows = Subtract(windows, NewInterval(lo, hi))
		if len(windows) == 0 {
			return nil
		}
	}
	return windows
}

// Day truncates t to the start of its UTC day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// At returns the instant minute minutes after the start of day.
func At(day time.Time, minute int) time.Time {
	return Day(day).Add(time.Duration(minute) * time.Minute)
}

// Starts lists slot start instants of size step covering every interval of
// day. A trailing remainder shorter than step is not emitted.
func Starts(day time.Time, windows []Interval, step time.Duration) []time.Time {
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return nil
	}
	var out []time.Time
	for _, w := range windows {
		for m := w.Open; m+stepMin <= w.Close; m += stepMin {
			out = append(out, At(day, m))
		}
	}
	return out
}
