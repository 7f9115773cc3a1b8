package ics

import (
	"bytes"
	"errors"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Entry is one event read back from a feed.
type Entry struct {
	UID      string
	Summary  string
	Location string
	At       time.Time
}

// ParseFeed reads a feed produced by BuildFeed (or any calendar with
// UID, SUMMARY and DTSTART on each event) ordered by start time.
func ParseFeed(body []byte) ([]Entry, error) {
	if len(body) == 0 {
		return nil, errors.New("empty feed")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		var e Entry
		if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
			e.UID = p.Value
		}
		if e.UID == "" {
			return nil, errors.New("event without UID")
		}
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			e.Summary = p.Value
		}
		if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
			e.Location = p.Value
		}
		at, err := ve.GetStartAt()
		if err != nil {
			return nil, err
		}
		e.At = at
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
