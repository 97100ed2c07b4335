package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Window is a half-open time-of-day interval [Start, End) in minutes from
// midnight. End < Start means the window wraps past midnight.
type Window struct {
	Start int
	End   int
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

func (w Window) contains(minute int) bool {
	if w.Start < w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

// WindowSet is the parsed form of a monitoring_hours expression. An empty set
// means the config is eligible around the clock.
type WindowSet []Window

// Contains reports whether t's wall-clock time of day falls inside any window.
func (ws WindowSet) Contains(t time.Time) bool {
	if len(ws) == 0 {
		return true
	}
	minute := t.Hour()*60 + t.Minute()
	for _, w := range ws {
		if w.contains(minute) {
			return true
		}
	}
	return false
}

func (ws WindowSet) String() string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.String()
	}
	return strings.Join(parts, ",")
}

// ParseWindows parses a comma-separated monitoring_hours expression such as
// "09:00-18:00", "9-18" or "22:00-06:00,08:00-12:00". Bare numbers are hours.
// Empty, overlapping or inverted-to-empty windows are errors; wrapping past
// midnight is not.
func ParseWindows(s string) (WindowSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make(WindowSet, 0, len(parts))
	for _, p := range parts {
		w, err := parseWindow(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := checkOverlap(out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseWindow(p string) (Window, error) {
	lo, hi, ok := strings.Cut(p, "-")
	if !ok {
		return Window{}, fmt.Errorf("window %q: want START-END", p)
	}
	start, err := parseClock(strings.TrimSpace(lo))
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", p, err)
	}
	end, err := parseClock(strings.TrimSpace(hi))
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", p, err)
	}
	if start == end {
		return Window{}, fmt.Errorf("window %q is empty", p)
	}
	return Window{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	if h, m, ok := strings.Cut(s, ":"); ok {
		hh, err := strconv.Atoi(h)
		if err != nil {
			return 0, fmt.Errorf("bad hour %q", h)
		}
		mm, err := strconv.Atoi(m)
		if err != nil {
			return 0, fmt.Errorf("bad minute %q", m)
		}
		if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
			return 0, fmt.Errorf("clock value %q out of range", s)
		}
		return hh*60 + mm, nil
	}
	hh, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad hour %q", s)
	}
	if hh < 0 || hh > 23 {
		return 0, fmt.Errorf("hour %d out of range", hh)
	}
	return hh * 60, nil
}

func checkOverlap(ws WindowSet) error {
	type segment struct {
		lo, hi, src int
	}
	var segs []segment
	for i, w := range ws {
		if w.Start < w.End {
			segs = append(segs, segment{w.Start, w.End, i})
		} else {
			segs = append(segs, segment{w.Start, minutesPerDay, i}, segment{0, w.End, i})
		}
	}
	for i := 0; i < len(segs); i++ {
		for j := i + 1; j < len(segs); j++ {
			if segs[i].src == segs[j].src {
				continue
			}
			if segs[i].lo < segs[j].hi && segs[j].lo < segs[i].hi {
				return fmt.Errorf("windows %s and %s overlap", ws[segs[i].src], ws[segs[j].src])
			}
		}
	}
	return nil
}
