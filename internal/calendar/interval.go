// Package calendar implements the minute-of-day interval arithmetic used to
// turn weekly opening rules and date exceptions into open windows for a
// single UTC day. Everything here is pure and allocation-light so it can be
// unit-tested without a database.
package calendar

import "sort"

// MinutesPerDay is the exclusive upper bound of a day in minutes.
const MinutesPerDay = 1440

// Interval is a half-open window [Open, Close) in minutes from midnight.
type Interval struct {
	Open  int `json:"open_minute"`
	Close int `json:"close_minute"`
}

// Empty reports whether the interval covers no minutes.
func (iv Interval) Empty() bool { return iv.Close <= iv.Open }

// Clamp restricts m to [0, MinutesPerDay].
func Clamp(m int) int {
	switch {
	case m < 0:
		return 0
	case m > MinutesPerDay:
		return MinutesPerDay
	default:
		return m
	}
}

// NewInterval builds a clamped interval.
func NewInterval(lo, hi int) Interval {
	return Interval{Open: Clamp(lo), Close: Clamp(hi)}
}

// Merge sorts the windows by start and coalesces overlapping or adjacent
// ones. Empty windows are dropped. The input slice is not modified.
func Merge(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	cp := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			cp = append(cp, iv)
		}
	}
	if len(cp) == 0 {
		return nil
	}
	sort.Slice(cp, func(i, j int) bool {
		if cp[i].Open != cp[j].Open {
			return cp[i].Open < cp[j].Open
		}
		return cp[i].Close < cp[j].Close
	})

	out := []Interval{cp[0]}
	for _, iv := range cp[1:] {
		last := &out[len(out)-1]
		if iv.Open <= last.Close {
			if iv.Close > last.Close {
				last.Close = iv.Close
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes cut from every window, splitting a window into zero, one
// or two remainders. The result is merged; nil means nothing is left.
func Subtract(windows []Interval, cut Interval) []Interval {
	if cut.Empty() {
		return Merge(windows)
	}
	out := make([]Interval, 0, len(windows)+1)
	for _, w := range windows {
		if cut.Close <= w.Open || cut.Open >= w.Close {
			out = append(out, w)
			continue
		}
		if cut.Open > w.Open {
			out = append(out, Interval{Open: w.Open, Close: cut.Open})
		}
		if cut.Close < w.Close {
			out = append(out, Interval{Open: cut.Close, Close: w.Close})
		}
	}
	return Merge(out)
}

// Total returns the number of minutes covered by already merged windows.
func Total(windows []Interval) int {
	n := 0
	for _, w := range windows {
		n += w.Close - w.Open
	}
	return n
}
