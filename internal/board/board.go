// Package board is the luach board service: it owns the preferences, the
// catalog and the engine, keeps the last computed snapshot and refreshes
// it on a schedule.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"luachboard/internal/calc"
	"luachboard/internal/catalog"
	"luachboard/internal/display"
	"luachboard/internal/engine"
	"luachboard/internal/geocode"
	"luachboard/internal/ics"
	"luachboard/internal/location"
	appLog "luachboard/internal/log"
	"luachboard/internal/model"
	"luachboard/internal/store"
)

// DateLayout is the wire form of a civil date.
const DateLayout = "2006-01-02"

// catalogBindWait bounds how long a catalog load waits for the calculator.
const catalogBindWait = 10 * time.Second

// Options configure a Board. Store, Gate and Geocoder are required.
type Options struct {
	Store    store.Store
	Gate     *calc.Gate
	Geocoder *geocode.Service
	// Catalog defaults to the seed list.
	Catalog *catalog.Catalog
	// Reporter receives fixes pushed by the page. May be nil when the
	// device mode is not "browser".
	Reporter *geocode.ReportedPositioner
	// Fetcher and CatalogURL enable LoadCatalog.
	Fetcher    *catalog.Fetcher
	CatalogURL string
	// FeedDays and FeedRule shape the iCalendar feed.
	FeedDays int
	FeedRule string
	// LogLevel applies while debug mode is off.
	LogLevel appLog.Level
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is one computed board.
type Snapshot struct {
	Date              string         `json:"date"`
	Location          model.GeoPoint `json:"location"`
	Title             string         `json:"title"`
	HebrewDate        string         `json:"hebrew_date,omitempty"`
	HebrewDateEnglish string         `json:"hebrew_date_english,omitempty"`
	DayOfWeek         string         `json:"day_of_week,omitempty"`
	Rows              []display.Row  `json:"zmanim"`
	ComputedAt        time.Time      `json:"computed_at"`
	// Error is set when the latest refresh failed and this is the last
	// good snapshot.
	Error string `json:"error,omitempty"`
}

// Board is constructed once at start up and shared by the HTTP server, the
// scheduler and the CLI.
type Board struct {
	locations *location.Store
	catalog   *catalog.Catalog
	engine    *engine.Engine
	gate      *calc.Gate
	geocoder  *geocode.Service
	reporter  *geocode.ReportedPositioner
	fetcher   *catalog.Fetcher

	catalogURL string
	feedDays   int
	feedRule   string
	logLevel   appLog.Level
	now        func() time.Time

	cronMu  sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	every   int
	baseCtx context.Context

	mu      sync.RWMutex
	snap    Snapshot
	hasSnap bool
	lastErr error
}

// New builds the board and restores saved preferences. A failed restore
// is logged; the board still starts with defaults for what could not be
// read.
func New(opts Options) (*Board, error) {
	if opts.Store == nil || opts.Gate == nil || opts.Geocoder == nil {
		return nil, errors.New("board: store, gate and geocoder are required")
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	level := opts.LogLevel
	if level == "" {
		level = appLog.LevelInfo
	}

	b := &Board{
		locations:  location.New(opts.Store),
		catalog:    cat,
		engine:     engine.New(opts.Gate, cat),
		gate:       opts.Gate,
		geocoder:   opts.Geocoder,
		reporter:   opts.Reporter,
		fetcher:    opts.Fetcher,
		catalogURL: opts.CatalogURL,
		feedDays:   opts.FeedDays,
		feedRule:   opts.FeedRule,
		logLevel:   level,
		now:        now,
		cron:       cron.New(),
		baseCtx:    context.Background(),
	}
	if err := b.locations.Load(); err != nil {
		appLog.Error("restoring preferences failed", err)
	}
	b.applyPreferences(b.locations.Preferences())
	return b, nil
}

// Start begins loading the calculator, schedules auto refresh and
// computes the first snapshot. The scheduled refreshes use ctx.
func (b *Board) Start(ctx context.Context) error {
	b.gate.Start(ctx)

	b.cronMu.Lock()
	b.baseCtx = ctx
	b.cronMu.Unlock()

	b.cron.Start()
	if err := b.ScheduleAutoRefresh(b.locations.Preferences().AutoRefreshMinutes); err != nil {
		return err
	}
	if err := b.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (b *Board) Stop() {
	<-b.cron.Stop().Done()
}

// ScheduleAutoRefresh replaces the refresh timer. At most one is active.
func (b *Board) ScheduleAutoRefresh(minutes int) error {
	if minutes < model.MinAutoRefreshMinutes || minutes > model.MaxAutoRefreshMinutes {
		return model.NewValidationError(fmt.Sprintf("Auto refresh must be between %d and %d minutes",
			model.MinAutoRefreshMinutes, model.MaxAutoRefreshMinutes))
	}

	b.cronMu.Lock()
	defer b.cronMu.Unlock()
	if b.entry != 0 {
		b.cron.Remove(b.entry)
		b.entry = 0
	}
	id, err := b.cron.AddFunc(fmt.Sprintf("@every %dm", minutes), func() {
		b.cronMu.Lock()
		ctx := b.baseCtx
		b.cronMu.Unlock()
		if err := b.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	b.entry, b.every = id, minutes
	appLog.Info("auto refresh scheduled", "every_minutes", minutes)
	return nil
}

// ScheduledEvery reports the active refresh interval in minutes, 0 when
// nothing is scheduled.
func (b *Board) ScheduledEvery() int {
	b.cronMu.Lock()
	defer b.cronMu.Unlock()
	if b.entry == 0 {
		return 0
	}
	return b.every
}

// Refresh recomputes today's board. On failure the previous snapshot is
// kept and carries the error.
func (b *Board) Refresh(ctx context.Context) error {
	snap, err := b.Compute(ctx, b.Today())

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.lastErr = err
		appLog.Warn("refresh failed, keeping last snapshot", "has_snapshot", b.hasSnap, "err", err.Error())
		return err
	}
	b.snap, b.hasSnap, b.lastErr = snap, true, nil
	appLog.Debug("board refreshed", "date", snap.Date, "rows", len(snap.Rows), "location", snap.Location.Name)
	return nil
}

// Snapshot returns the last good snapshot, false before the first
// successful refresh.
func (b *Board) Snapshot() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.snap
	s.Rows = append([]display.Row(nil), b.snap.Rows...)
	if b.lastErr != nil {
		s.Error = b.lastErr.Error()
	}
	return s, b.hasSnap
}

// Today is midnight of the current civil day at the board's location.
func (b *Board) Today() time.Time {
	loc := b.zone(b.locations.Current())
	y, m, d := b.now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseDate reads YYYY-MM-DD as a civil day at the board's location. An
// empty string is today. Other days need date navigation enabled.
func (b *Board) ParseDate(s string) (time.Time, error) {
	today := b.Today()
	s = strings.TrimSpace(s)
	if s == "" {
		return today, nil
	}
	day, err := time.ParseInLocation(DateLayout, s, today.Location())
	if err != nil {
		return time.Time{}, model.NewValidationError("Date must be YYYY-MM-DD")
	}
	if !day.Equal(today) && !b.locations.Preferences().AllowDateNavigation {
		return time.Time{}, model.NewValidationError("Date navigation is disabled")
	}
	return day, nil
}

// Compute builds the board for the civil day of day without touching the
// stored snapshot.
func (b *Board) Compute(ctx context.Context, day time.Time) (Snapshot, error) {
	point := b.locations.Current()
	loc := b.zone(point)
	y, m, d := day.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, loc)

	rows, err := b.rows(ctx, point, date)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Date:       date.Format(DateLayout),
		Location:   point,
		Title:      b.Title(),
		Rows:       rows,
		ComputedAt: b.now(),
	}
	if hd, ok := b.engine.HebrewDate(date); ok {
		snap.HebrewDate = hd.Formatted
		snap.HebrewDateEnglish = hd.English
	}
	snap.DayOfWeek = b.engine.HebrewDayOfWeek(date)
	return snap, nil
}

func (b *Board) rows(ctx context.Context, point model.GeoPoint, date time.Time) ([]display.Row, error) {
	values, err := b.engine.ComputeAll(ctx, point, point.Elevation, date)
	if err != nil {
		return nil, err
	}
	prefs := b.locations.Preferences()
	loc := date.Location()
	format := func(v model.ZmanValue) string {
		return engine.FormatTime(v, prefs.HourFormat, prefs.ShowSeconds, loc)
	}
	return display.Present(values, b.catalog.Descriptors(), b.locations.Visibility(), prefs.LabelLanguage, format), nil
}

func (b *Board) zone(point model.GeoPoint) *time.Location {
	loc, err := time.LoadLocation(point.Timezone)
	if err != nil || point.Timezone == "" {
		appLog.Warn("unknown timezone, using local", "tz", point.Timezone)
		return time.Local
	}
	return loc
}

// Title is the custom title, or the location name when none is set.
func (b *Board) Title() string {
	if t := b.locations.CustomTitle(); t != "" {
		return t
	}
	return b.locations.Current().Name
}

// Location returns the current location.
func (b *Board) Location() model.GeoPoint { return b.locations.Current() }

// HasLocation reports whether the current location has usable coordinates.
func (b *Board) HasLocation() bool { return b.locations.HasLocation() }

// Preferences returns the current settings.
func (b *Board) Preferences() model.Preferences { return b.locations.Preferences() }

// Visibility returns the per-zman flags.
func (b *Board) Visibility() model.VisibilitySet { return b.locations.Visibility() }

// Catalog returns the descriptor list in catalog order.
func (b *Board) Catalog() []model.ZmanDescriptor { return b.catalog.Descriptors() }

// Ready reports whether the calculator has loaded.
func (b *Board) Ready() bool { return b.engine.Ready() }

// SetLocationFromZip geocodes zip and makes the result current.
func (b *Board) SetLocationFromZip(ctx context.Context, zip string) (model.GeoPoint, error) {
	place, err := b.geocoder.GeocodeZip(ctx, zip)
	if err != nil {
		return model.GeoPoint{}, err
	}
	return b.usePlace(ctx, place, place.Source())
}

// SetLocationFromCoordinates parses typed coordinates. Without a name the
// point is reverse geocoded, falling back to the coordinates themselves.
func (b *Board) SetLocationFromCoordinates(ctx context.Context, lat, lon, name string) (model.GeoPoint, error) {
	la, lo, err := geocode.ValidateCoordinates(lat, lon)
	if err != nil {
		return model.GeoPoint{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = b.geocoder.ReverseGeocode(ctx, la, lo)
	}
	return b.usePlace(ctx, geocode.Place{Name: name, Latitude: la, Longitude: lo}, model.SourceManual)
}

// SetLocationFromDevice takes one device fix and makes it current.
func (b *Board) SetLocationFromDevice(ctx context.Context) (model.GeoPoint, error) {
	place, err := b.geocoder.CurrentDeviceLocation(ctx)
	if err != nil {
		return model.GeoPoint{}, err
	}
	return b.usePlace(ctx, place, place.Source())
}

func (b *Board) usePlace(ctx context.Context, place geocode.Place, source model.Source) (model.GeoPoint, error) {
	return b.UpdateLocation(ctx, location.Update{
		Name:      &place.Name,
		Latitude:  &place.Latitude,
		Longitude: &place.Longitude,
	}, source)
}

// UpdateLocation applies a partial edit and refreshes the board.
func (b *Board) UpdateLocation(ctx context.Context, u location.Update, source model.Source) (model.GeoPoint, error) {
	point, err := b.locations.Apply(u, source)
	if err != nil {
		return model.GeoPoint{}, err
	}
	b.refreshQuietly(ctx)
	return point, nil
}

// ReportFix passes a fix from the page to a waiting device request.
func (b *Board) ReportFix(fix geocode.Fix) error {
	if b.reporter == nil {
		return model.NewValidationError("Device fixes are not accepted in this mode")
	}
	return b.reporter.Report(fix)
}

// ReportFailure passes a failed location request from the page.
func (b *Board) ReportFailure(code model.DeviceErrorCode) error {
	if b.reporter == nil {
		return model.NewValidationError("Device fixes are not accepted in this mode")
	}
	b.reporter.Fail(code)
	return nil
}

// SaveSettings persists p and applies its side effects: log level,
// remote lookups and the refresh schedule.
func (b *Board) SaveSettings(ctx context.Context, p model.Preferences) error {
	prev := b.locations.Preferences()
	// The location only changes through the location setters.
	p.CurrentLocation = prev.CurrentLocation
	if err := b.locations.SaveSettings(p); err != nil {
		return err
	}
	saved := b.locations.Preferences()
	b.applyPreferences(saved)
	if saved.AutoRefreshMinutes != prev.AutoRefreshMinutes || b.ScheduledEvery() == 0 {
		if err := b.ScheduleAutoRefresh(saved.AutoRefreshMinutes); err != nil {
			return err
		}
	}
	b.refreshQuietly(ctx)
	return nil
}

func (b *Board) applyPreferences(p model.Preferences) {
	if p.DebugMode {
		appLog.SetLevel(appLog.LevelDebug)
	} else {
		appLog.SetLevel(b.logLevel)
	}
	b.geocoder.SetRemoteLookups(p.AllowLookups)
}

// SetVisible shows or hides one zman.
func (b *Board) SetVisible(ctx context.Context, id string, visible bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.NewValidationError("zman id must not be empty")
	}
	if err := b.locations.SetVisible(id, visible); err != nil {
		return err
	}
	b.refreshQuietly(ctx)
	return nil
}

// AddZman appends a descriptor. When the calculator is loaded the method
// must resolve against it first.
func (b *Board) AddZman(ctx context.Context, d model.ZmanDescriptor) error {
	d.ID = strings.TrimSpace(d.ID)
	if c, ok := b.gate.Calculator(); ok {
		if _, err := catalog.Resolve(d, c.Methods()); err != nil {
			return model.NewValidationError(err.Error())
		}
	}
	if err := b.catalog.Add(d); err != nil {
		return err
	}
	appLog.Info("zman added", "id", d.ID, "method", d.Method)
	b.refreshQuietly(ctx)
	return nil
}

// LoadCatalog replaces the catalog from url, or the configured URL when
// url is empty. The new list is checked against the calculator, loading
// it first if needed: entries that do not bind are logged and shown as
// absent, and a list in which nothing binds is rolled back.
func (b *Board) LoadCatalog(ctx context.Context, url string) error {
	if url == "" {
		url = b.catalogURL
	}
	if url == "" || b.fetcher == nil {
		return model.NewValidationError("No catalog URL configured")
	}

	prev := b.catalog.Descriptors()
	if err := b.catalog.LoadURL(ctx, b.fetcher, url); err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, catalogBindWait)
	c, err := b.gate.Wait(wctx)
	cancel()
	if err != nil {
		appLog.Warn("catalog loaded without bind check", "err", err.Error())
	} else if table := b.catalog.Bind(c.Methods()); table.Resolved() == 0 && len(table.Bindings) > 0 {
		if rbErr := b.catalog.Replace(prev); rbErr != nil {
			appLog.Error("catalog rollback failed", rbErr)
		}
		return table.Err()
	}
	b.refreshQuietly(ctx)
	return nil
}

// Feed renders the next days as an iCalendar feed. days <= 0 uses the
// configured window.
func (b *Board) Feed(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		days = b.feedDays
	}
	point := b.locations.Current()
	return ics.BuildFeed(ctx, ics.FeedConfig{
		Name:     "Zmanim " + b.Title(),
		Location: point,
		Days: ics.DayConfig{
			Start:    b.Today(),
			Location: b.zone(point),
			Days:     days,
			Rule:     b.feedRule,
		},
		Now: b.now(),
	}, func(ctx context.Context, day time.Time) ([]display.Row, error) {
		return b.rows(ctx, point, day)
	})
}

func (b *Board) refreshQuietly(ctx context.Context) {
	if err := b.Refresh(ctx); err != nil {
		appLog.Debug("refresh after change failed", "err", err.Error())
	}
}
