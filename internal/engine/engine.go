// Package engine evaluates the zmanim catalog against a calculator for
// one location and day.
package engine

import (
	"context"
	"sync"
	"time"

	"luachboard/internal/calc"
	"luachboard/internal/catalog"
	appLog "luachboard/internal/log"
	"luachboard/internal/model"
)

// Placeholder is shown for times that could not be computed.
const Placeholder = "--:--"

// IsraelZone decides between the Israel and diaspora Yom Tov calendars.
const IsraelZone = "Asia/Jerusalem"

// Engine ties the catalog to a calculator behind a readiness gate. The
// bound dispatch table is rebuilt when the catalog version changes.
// Concurrent ComputeAll calls each do the full work.
type Engine struct {
	gate    *calc.Gate
	catalog *catalog.Catalog

	mu    sync.Mutex
	table *catalog.Table
}

func New(gate *calc.Gate, cat *catalog.Catalog) *Engine {
	return &Engine{gate: gate, catalog: cat}
}

// Ready reports whether the calculator has loaded.
func (e *Engine) Ready() bool { return e.gate.Ready() }

// Bind returns the dispatch table for the current catalog, binding it on
// first use or after the catalog changed.
func (e *Engine) Bind(ctx context.Context) (*catalog.Table, calc.Calculator, error) {
	c, err := e.gate.Wait(ctx)
	if err != nil {
		appLog.Warn("calculator not available", "err", err.Error())
		return nil, nil, model.ErrCalculatorUnavailable
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table != nil && e.table.Version == e.catalog.Version() {
		return e.table, c, nil
	}
	t := e.catalog.Bind(c.Methods())
	e.table = t
	appLog.Debug("catalog bound", "version", t.Version, "zmanim", len(t.Bindings), "resolved", t.Resolved())
	return t, c, nil
}

// ComputeAll evaluates every catalog entry for point at the given
// elevation on the civil day of date. Entries that fail are logged and
// come back absent, as do entries that did not bind. The candle lighting entry is left out on days without
// candle lighting.
func (e *Engine) ComputeAll(ctx context.Context, point model.GeoPoint, elevation float64, date time.Time) (map[string]model.ZmanValue, error) {
	table, c, err := e.Bind(ctx)
	if err != nil {
		return nil, err
	}

	point.Elevation = elevation
	cal, err := c.NewCalendar(point)
	if err != nil {
		return nil, err
	}
	cal.SetDate(date)

	inIsrael := point.Timezone == IsraelZone
	values := make(map[string]model.ZmanValue, len(table.Bindings))
	for _, b := range table.Bindings {
		if b.ID == catalog.CandleLightingID && !c.HasCandleLighting(date, inIsrael) {
			continue
		}
		if !b.Resolved() {
			values[b.ID] = model.Absent()
			continue
		}

		var at time.Time
		if b.HasArg {
			at, err = cal.CallWith(b.Method, b.Arg)
		} else {
			at, err = cal.Call(b.Method)
		}
		if err != nil {
			appLog.Warn("zman computation failed", "id", b.ID, "method", b.Method,
				"kind", string(model.KindPartialComputation), "err", err.Error())
			values[b.ID] = model.Absent()
			continue
		}
		values[b.ID] = model.Present(at)
	}
	return values, nil
}

// HebrewDate converts date, or reports false if the calculator is not
// ready or the conversion fails.
func (e *Engine) HebrewDate(date time.Time) (calc.HebrewDate, bool) {
	c, ok := e.gate.Calculator()
	if !ok {
		return calc.HebrewDate{}, false
	}
	hd, err := c.HebrewDate(date)
	if err != nil {
		appLog.Warn("hebrew date failed", "err", err.Error())
		return calc.HebrewDate{}, false
	}
	return hd, true
}

// HebrewDayOfWeek is e.g. "יום שני", or "" on failure.
func (e *Engine) HebrewDayOfWeek(date time.Time) string {
	hd, ok := e.HebrewDate(date)
	if !ok {
		return ""
	}
	return calc.HebrewWeekdayName(hd.Weekday)
}

// FormatTime renders v in loc (or its own zone when loc is nil).
func FormatTime(v model.ZmanValue, format model.HourFormat, seconds bool, loc *time.Location) string {
	if !v.OK || v.At.IsZero() {
		return Placeholder
	}
	t := v.At
	if loc != nil {
		t = t.In(loc)
	}
	var layout string
	switch {
	case format == model.Hour24 && seconds:
		layout = "15:04:05"
	case format == model.Hour24:
		layout = "15:04"
	case seconds:
		layout = "3:04:05 PM"
	default:
		layout = "3:04 PM"
	}
	return t.Format(layout)
}
