// Package location holds the current location record and the display
// preferences, persisted through a key-value store.
package location

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	appLog "luachboard/internal/log"
	"luachboard/internal/model"
	"luachboard/internal/store"
	"luachboard/internal/zone"
)

// Persistent keys.
const (
	KeyLocation            = "luach-location-settings"
	KeyCustomTitle         = "luach-custom-title"
	KeyShowSeconds         = "luach-show-seconds"
	KeyAutoRefreshMinutes  = "luach-auto-refresh-minutes"
	KeyAllowLookups        = "luach-allow-lookups"
	KeyDebugMode           = "luach-debug-mode"
	KeyLabelLanguage       = "luach-label-language"
	KeyAllowDateNavigation = "luach-allow-date-navigation"
	KeyHourFormat          = "luach-hour-format"
	KeyVisibility          = "luach-zmanim-visibility"
)

// Update is a partial location edit. Nil fields keep their current value.
type Update struct {
	Name      *string
	Latitude  *float64
	Longitude *float64
	Timezone  *string
	Elevation *float64
}

// Store is the in-memory view of the persisted preferences. Every mutation
// is written through before it becomes visible.
type Store struct {
	mu         sync.RWMutex
	kv         store.Store
	prefs      model.Preferences
	visibility model.VisibilitySet
	now        func() time.Time
}

// New returns a store holding defaults. Call Load to restore saved state.
func New(kv store.Store) *Store {
	return &Store{
		kv:         kv,
		prefs:      model.DefaultPreferences(),
		visibility: model.VisibilitySet{},
		now:        time.Now,
	}
}

// Load restores every key. Missing or unparsable values fall back to
// their defaults; read errors are logged and returned together after
// everything else has been restored.
func (s *Store) Load() error {
	var errs []error
	get := func(key string) (string, bool) {
		v, ok, err := s.kv.Get(key)
		if err != nil {
			appLog.Error("preference read failed", err, "key", key)
			errs = append(errs, err)
			return "", false
		}
		return v, ok
	}

	prefs := model.DefaultPreferences()
	vis := model.VisibilitySet{}

	if raw, ok := get(KeyLocation); ok {
		var p model.GeoPoint
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			appLog.Warn("stored location unreadable, using default", "err", err.Error())
		} else if err := p.Validate(); err != nil {
			appLog.Warn("stored location invalid, using default", "err", err.Error())
		} else {
			if p.Timezone == "" {
				p.Timezone = zone.Resolve(p.Latitude, p.Longitude)
			}
			if p.Source == "" {
				p.Source = model.SourceManual
			}
			prefs.CurrentLocation = p
		}
	}
	if raw, ok := get(KeyCustomTitle); ok {
		prefs.CustomTitle = raw
	}
	if raw, ok := get(KeyShowSeconds); ok {
		prefs.ShowSeconds = parseBool(raw, prefs.ShowSeconds)
	}
	if raw, ok := get(KeyAutoRefreshMinutes); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil &&
			n >= model.MinAutoRefreshMinutes && n <= model.MaxAutoRefreshMinutes {
			prefs.AutoRefreshMinutes = n
		}
	}
	if raw, ok := get(KeyAllowLookups); ok {
		prefs.AllowLookups = parseBool(raw, prefs.AllowLookups)
	}
	if raw, ok := get(KeyDebugMode); ok {
		prefs.DebugMode = parseBool(raw, prefs.DebugMode)
	}
	if raw, ok := get(KeyLabelLanguage); ok {
		if lang, ok := model.ParseLabelLanguage(raw); ok {
			prefs.LabelLanguage = lang
		}
	}
	if raw, ok := get(KeyAllowDateNavigation); ok {
		prefs.AllowDateNavigation = parseBool(raw, prefs.AllowDateNavigation)
	}
	if raw, ok := get(KeyHourFormat); ok {
		if hf := model.HourFormat(raw); hf == model.Hour12 || hf == model.Hour24 {
			prefs.HourFormat = hf
		}
	}
	if raw, ok := get(KeyVisibility); ok {
		if err := json.Unmarshal([]byte(raw), &vis); err != nil {
			appLog.Warn("stored visibility unreadable, showing everything", "err", err.Error())
			vis = model.VisibilitySet{}
		}
	}

	s.mu.Lock()
	s.prefs = prefs
	s.visibility = vis
	s.mu.Unlock()

	if len(errs) > 0 {
		return model.NewPersistenceError("load preferences", errors.Join(errs...))
	}
	return nil
}

func parseBool(raw string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return b
}

// Current returns the current location.
func (s *Store) Current() model.GeoPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.CurrentLocation
}

// HasLocation reports whether the current location carries usable
// coordinates. The built-in default counts.
func (s *Store) HasLocation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.prefs.CurrentLocation
	return model.ValidateLatLon(cur.Latitude, cur.Longitude) == nil
}

// DisplayString renders the current location as "Name (lat, lon)".
func (s *Store) DisplayString() string {
	return s.Current().DisplayString()
}

// Update merges u into the current location and reports whether the
// result was saved. See Apply for the error.
func (s *Store) Update(u Update, source model.Source) bool {
	_, err := s.Apply(u, source)
	return err == nil
}

// Apply merges u into the current location, resolves the timezone when u
// moves the point without naming one, stamps the time and persists. The
// in-memory record changes only after a successful write.
func (s *Store) Apply(u Update, source model.Source) (model.GeoPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs.CurrentLocation
	moved := false
	if u.Latitude != nil {
		moved = moved || *u.Latitude != next.Latitude
		next.Latitude = *u.Latitude
	}
	if u.Longitude != nil {
		moved = moved || *u.Longitude != next.Longitude
		next.Longitude = *u.Longitude
	}
	if u.Elevation != nil {
		next.Elevation = *u.Elevation
	}
	if u.Name != nil {
		next.Name = strings.TrimSpace(*u.Name)
	}
	if next.Name == "" {
		next.Name = model.CoordinateName(next.Latitude, next.Longitude)
	}
	switch {
	case u.Timezone != nil && *u.Timezone != "":
		if _, err := time.LoadLocation(*u.Timezone); err != nil {
			return s.prefs.CurrentLocation, model.NewValidationError("Unknown timezone " + strconv.Quote(*u.Timezone))
		}
		next.Timezone = *u.Timezone
	case moved || next.Timezone == "":
		next.Timezone = zone.Resolve(next.Latitude, next.Longitude)
	}
	next.Source = source
	next.ResolvedAt = s.now().UTC()

	if err := next.Validate(); err != nil {
		return s.prefs.CurrentLocation, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return s.prefs.CurrentLocation, model.NewPersistenceError("encode location", err)
	}
	if err := s.kv.Set(KeyLocation, string(data)); err != nil {
		appLog.Error("location save failed", err, "name", next.Name)
		return s.prefs.CurrentLocation, model.NewPersistenceError("save location", err)
	}
	s.prefs.CurrentLocation = next
	appLog.Info("location updated", "name", next.Name, "lat", next.Latitude, "lon", next.Longitude,
		"tz", next.Timezone, "source", string(source))
	return next, nil
}

// CustomTitle returns the title shown instead of the location name, or "".
func (s *Store) CustomTitle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.CustomTitle
}

// SetCustomTitle saves the title; an empty title deletes the key.
func (s *Store) SetCustomTitle(title string) error {
	title = strings.TrimSpace(title)
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if title == "" {
		err = s.kv.Delete(KeyCustomTitle)
	} else {
		err = s.kv.Set(KeyCustomTitle, title)
	}
	if err != nil {
		return model.NewPersistenceError("save custom title", err)
	}
	s.prefs.CustomTitle = title
	return nil
}

// Preferences returns a copy of the current settings.
func (s *Store) Preferences() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SaveSettings validates p and writes every preference in one batch. The
// location record in p replaces the current one as is.
func (s *Store) SaveSettings(p model.Preferences) error {
	lang, ok := model.ParseLabelLanguage(string(p.LabelLanguage))
	if ok {
		p.LabelLanguage = lang
	}
	p.CustomTitle = strings.TrimSpace(p.CustomTitle)
	if p.CurrentLocation.Timezone == "" {
		p.CurrentLocation.Timezone = zone.Resolve(p.CurrentLocation.Latitude, p.CurrentLocation.Longitude)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	loc, err := json.Marshal(p.CurrentLocation)
	if err != nil {
		return model.NewPersistenceError("encode location", err)
	}

	b := store.NewBatch()
	b.Put(KeyLocation, string(loc))
	if p.CustomTitle == "" {
		b.Remove(KeyCustomTitle)
	} else {
		b.Put(KeyCustomTitle, p.CustomTitle)
	}
	b.Put(KeyShowSeconds, strconv.FormatBool(p.ShowSeconds))
	b.Put(KeyAutoRefreshMinutes, strconv.Itoa(p.AutoRefreshMinutes))
	b.Put(KeyAllowLookups, strconv.FormatBool(p.AllowLookups))
	b.Put(KeyDebugMode, strconv.FormatBool(p.DebugMode))
	b.Put(KeyLabelLanguage, string(p.LabelLanguage))
	b.Put(KeyAllowDateNavigation, strconv.FormatBool(p.AllowDateNavigation))
	b.Put(KeyHourFormat, string(p.HourFormat))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetBatch(b); err != nil {
		appLog.Error("settings save failed", err)
		return model.NewPersistenceError("save settings", err)
	}
	s.prefs = p
	appLog.Info("settings saved", "keys", len(b.Keys()))
	return nil
}

// Visibility returns a copy of the per-zman visibility flags.
func (s *Store) Visibility() model.VisibilitySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(model.VisibilitySet, len(s.visibility))
	for k, v := range s.visibility {
		out[k] = v
	}
	return out
}

// IsVisible reports the flag for id. Unknown ids are visible.
func (s *Store) IsVisible(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibility.Visible(id)
}

// SetVisible saves the flag for id.
func (s *Store) SetVisible(id string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(model.VisibilitySet, len(s.visibility)+1)
	for k, v := range s.visibility {
		next[k] = v
	}
	next[id] = visible

	data, err := json.Marshal(next)
	if err != nil {
		return model.NewPersistenceError("encode visibility", err)
	}
	if err := s.kv.Set(KeyVisibility, string(data)); err != nil {
		return model.NewPersistenceError("save visibility", err)
	}
	s.visibility = next
	return nil
}
