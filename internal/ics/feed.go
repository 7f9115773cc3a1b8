// Package ics publishes computed zmanim as an iCalendar feed so phones
// and desktop calendars can subscribe to the board.
package ics

import (
	"context"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"luachboard/internal/display"
	appLog "luachboard/internal/log"
	"luachboard/internal/model"
)

const productID = "-//luachboard//zmanim feed//EN"

// uidSpace namespaces event UIDs so the same zman on the same day and
// place keeps its UID across refreshes.
var uidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://luachboard.local/zmanim"))

// DayComputer yields the rows for one civil day, already filtered and
// ordered for display.
type DayComputer func(ctx context.Context, day time.Time) ([]display.Row, error)

// FeedConfig describes the feed.
type FeedConfig struct {
	Name     string
	Location model.GeoPoint
	Days     DayConfig
	// Now stamps DTSTAMP. Zero means time.Now.
	Now time.Time
}

// BuildFeed computes every day in the window and serializes the result.
// Days that fail are logged and skipped; absent zmanim produce no event.
func BuildFeed(ctx context.Context, cfg FeedConfig, compute DayComputer) (string, error) {
	loc, err := time.LoadLocation(cfg.Location.Timezone)
	if err != nil {
		return "", fmt.Errorf("feed timezone: %w", err)
	}
	dc := cfg.Days
	if dc.Location == nil {
		dc.Location = loc
	}
	days, err := ExpandDays(dc)
	if err != nil {
		return "", err
	}

	stamp := cfg.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := cfg.Name
	if name == "" {
		name = "Zmanim " + cfg.Location.Name
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)
	cal.SetXWRTimezone(cfg.Location.Timezone)
	cal.SetRefreshInterval("PT1H")

	events := 0
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := compute(ctx, day)
		if err != nil {
			appLog.Error("feed day failed", err, "date", day.Format("2006-01-02"))
			continue
		}
		for _, r := range rows {
			if !r.Value.OK {
				continue
			}
			ev := cal.AddEvent(EventUID(r.ID, day, cfg.Location))
			ev.SetDtStampTime(stamp)
			ev.SetStartAt(r.Value.At)
			ev.SetEndAt(r.Value.At)
			ev.SetSummary(r.Label)
			ev.SetLocation(cfg.Location.Name)
			ev.SetDescription(fmt.Sprintf("%s %s", r.ID, day.Format("2006-01-02")))
			ev.SetTimeTransparency(ical.TransparencyTransparent)
			events++
		}
	}

	appLog.Info("feed built", "days", len(days), "events", events, "location", cfg.Location.Name)
	return cal.Serialize(), nil
}

// EventUID is stable for a zman id, civil day and coordinates.
func EventUID(id string, day time.Time, p model.GeoPoint) string {
	key := fmt.Sprintf("%s|%s|%.4f|%.4f", id, day.Format("2006-01-02"), p.Latitude, p.Longitude)
	return uuid.NewSHA1(uidSpace, []byte(key)).String() + "@luachboard"
}
