// Package meal maps a wall-clock time to the meal occasion a post should target.
package meal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Occasion 餐次。
type Occasion int

const (
	Breakfast Occasion = iota
	Lunch
	Dinner
	Snack
)

func (o Occasion) String() string {
	switch o {
	case Breakfast:
		return "breakfast"
	case Lunch:
		return "lunch"
	case Dinner:
		return "dinner"
	case Snack:
		return "snack"
	default:
		return fmt.Sprintf("occasion(%d)", int(o))
	}
}

// Label is the Chinese name used in prompts and fallback content.
func (o Occasion) Label() string {
	switch o {
	case Breakfast:
		return "早餐"
	case Lunch:
		return "午餐"
	case Dinner:
		return "晚餐"
	default:
		return "小吃"
	}
}

// ParseOccasion accepts the String() form or the Chinese label.
func ParseOccasion(s string) (Occasion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "breakfast", "早餐":
		return Breakfast, nil
	case "lunch", "午餐":
		return Lunch, nil
	case "dinner", "晚餐":
		return Dinner, nil
	case "snack", "late-night", "小吃", "夜宵":
		return Snack, nil
	}
	return 0, fmt.Errorf("unknown meal occasion %q", s)
}

// Window starts an occasion at Start (offset from midnight) and lasts until the next window.
type Window struct {
	Start    time.Duration
	Occasion Occasion
}

// Schedule partitions the 24h clock. Each window is [Start, next.Start); the last window wraps
// past midnight up to the first window's start.
type Schedule struct {
	windows []Window
}

var errEmptySchedule = errors.New("meal schedule needs at least one window")

// NewSchedule sorts and validates windows. Starts must be distinct and inside [0, 24h).
func NewSchedule(windows []Window) (Schedule, error) {
	if len(windows) == 0 {
		return Schedule{}, errEmptySchedule
	}
	ws := make([]Window, len(windows))
	copy(ws, windows)
	sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	for i, w := range ws {
		if w.Start < 0 || w.Start >= 24*time.Hour {
			return Schedule{}, fmt.Errorf("meal window %s starts outside the day", w.Occasion)
		}
		if i > 0 && ws[i-1].Start == w.Start {
			return Schedule{}, fmt.Errorf("meal windows %s and %s share start %s", ws[i-1].Occasion, w.Occasion, w.Start)
		}
	}
	return Schedule{windows: ws}, nil
}

// DefaultSchedule follows the household rhythm: 6-11 breakfast, 11-15 lunch, 17-22 dinner,
// everything else is a snack.
func DefaultSchedule() Schedule {
	s, _ := NewSchedule([]Window{
		{Start: 6 * time.Hour, Occasion: Breakfast},
		{Start: 11 * time.Hour, Occasion: Lunch},
		{Start: 15 * time.Hour, Occasion: Snack},
		{Start: 17 * time.Hour, Occasion: Dinner},
		{Start: 22 * time.Hour, Occasion: Snack},
	})
	return s
}

// Windows returns a copy of the sorted windows.
func (s Schedule) Windows() []Window {
	out := make([]Window, len(s.windows))
	copy(out, s.windows)
	return out
}

// Classify returns the occasion whose window contains t's local time of day.
func (s Schedule) Classify(t time.Time) Occasion {
	if len(s.windows) == 0 {
		s = DefaultSchedule()
	}
	tod := sinceMidnight(t)
	// 凌晨还没到第一个窗口时，归属前一天最后一个窗口。
	current := s.windows[len(s.windows)-1]
	for _, w := range s.windows {
		if w.Start > tod {
			break
		}
		current = w
	}
	return current.Occasion
}

func sinceMidnight(t time.Time) time.Duration {
	h, m, sec := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(t.Nanosecond())
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (o Occasion) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Occasion) UnmarshalText(b []byte) error {
	v, err := ParseOccasion(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
