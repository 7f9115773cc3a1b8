package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	defaultDays = 7
	maxDays     = 366
)

// DayConfig selects which civil days a feed covers.
type DayConfig struct {
	// Start is the first candidate day, read as a civil date in Location.
	Start time.Time
	// Location anchors each day at local midnight. Nil means UTC.
	Location *time.Location
	// Days is the window length. Zero means a week.
	Days int
	// Rule optionally narrows the window, e.g. "FREQ=WEEKLY;BYDAY=FR" for
	// a Fridays-only candle lighting feed. DTSTART and UNTIL come from the
	// window.
	Rule string
}

// ExpandDays lists the local midnights inside the window that match the
// rule (every day when Rule is empty).
func ExpandDays(cfg DayConfig) ([]time.Time, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	days := cfg.Days
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		return nil, fmt.Errorf("expand: at most %d days, got %d", maxDays, days)
	}
	if cfg.Start.IsZero() {
		return nil, errors.New("expand: start date is zero")
	}

	y, m, d := cfg.Start.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)
	last := time.Date(y, m, d+days-1, 0, 0, 0, 0, loc)

	opt := &rrule.ROption{Freq: rrule.DAILY}
	if strings.TrimSpace(cfg.Rule) != "" {
		parsed, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(cfg.Rule), "RRULE:"))
		if err != nil {
			return nil, fmt.Errorf("expand: bad rule %q: %w", cfg.Rule, err)
		}
		opt = parsed
	}
	opt.Dtstart = first
	opt.Until = last
	opt.Count = 0

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	out := make([]time.Time, 0, days)
	for _, t := range r.All() {
		// Normalize to midnight; a DST jump must not move the civil date.
		ty, tm, td := t.In(loc).Date()
		out = append(out, time.Date(ty, tm, td, 0, 0, 0, 0, loc))
	}
	return out, nil
}
