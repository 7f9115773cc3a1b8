package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Source records how a GeoPoint was obtained.
type Source string

const (
	SourceDefault       Source = "default"
	SourceManual        Source = "manual"
	SourceZipCode       Source = "zipcode"
	SourceGPS           Source = "gps"
	SourceLocalDatabase Source = "local_db"
)

// GeoPoint is a resolved location: coordinates plus name, timezone,
// elevation and provenance.
type GeoPoint struct {
	Name       string    `json:"name"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timezone   string    `json:"timezone"`
	Elevation  float64   `json:"elevation,omitempty"`
	Source     Source    `json:"method"`
	ResolvedAt time.Time `json:"updatedAt,omitempty"`
}

// DefaultGeoPoint is installed when nothing usable is stored.
func DefaultGeoPoint() GeoPoint {
	return GeoPoint{
		Name:      "New York, NY",
		Latitude:  40.7128,
		Longitude: -74.0060,
		Timezone:  "America/New_York",
		Source:    SourceDefault,
	}
}

// Validate checks that latitude and longitude are jointly usable and the
// elevation is not negative.
func (p GeoPoint) Validate() error {
	if err := ValidateLatLon(p.Latitude, p.Longitude); err != nil {
		return err
	}
	if p.Elevation < 0 || math.IsNaN(p.Elevation) {
		return NewValidationError("Elevation must not be negative")
	}
	return nil
}

// ValidateLatLon checks the numeric ranges of a coordinate pair.
func ValidateLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return NewValidationError("Coordinates must be numbers")
	}
	if lat < -90 || lat > 90 {
		return NewValidationError("Latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return NewValidationError("Longitude must be between -180 and 180")
	}
	return nil
}

// CoordinateName is the label used when no better name is known.
func CoordinateName(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

// DisplayString renders "Name (lat, lon)".
func (p GeoPoint) DisplayString() string {
	return fmt.Sprintf("%s (%s)", p.Name, CoordinateName(p.Latitude, p.Longitude))
}

// LabelLanguage selects which half of a bilingual label is shown.
type LabelLanguage string

const (
	LanguageEnglish LabelLanguage = "english"
	LanguageHebrew  LabelLanguage = "hebrew"
	LanguageBoth    LabelLanguage = "both"
)

// ParseLabelLanguage accepts the canonical names plus "en"/"he".
func ParseLabelLanguage(s string) (LabelLanguage, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "english", "en":
		return LanguageEnglish, true
	case "hebrew", "he":
		return LanguageHebrew, true
	case "both":
		return LanguageBoth, true
	default:
		return "", false
	}
}

// HourFormat is the clock style used when rendering times.
type HourFormat string

const (
	Hour12 HourFormat = "12h"
	Hour24 HourFormat = "24h"
)

const (
	MinAutoRefreshMinutes     = 1
	MaxAutoRefreshMinutes     = 1440
	DefaultAutoRefreshMinutes = 60
)

// Preferences is the process-wide display and location state.
type Preferences struct {
	CurrentLocation     GeoPoint      `json:"current_location"`
	CustomTitle         string        `json:"custom_title,omitempty"`
	LabelLanguage       LabelLanguage `json:"label_language"`
	ShowSeconds         bool          `json:"show_seconds"`
	AutoRefreshMinutes  int           `json:"auto_refresh_minutes"`
	AllowDateNavigation bool          `json:"allow_date_navigation"`
	AllowLookups        bool          `json:"allow_lookups"`
	DebugMode           bool          `json:"debug_mode"`
	HourFormat          HourFormat    `json:"hour_format"`
}

// DefaultPreferences is what a first run starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		CurrentLocation:    DefaultGeoPoint(),
		LabelLanguage:      LanguageBoth,
		AutoRefreshMinutes: DefaultAutoRefreshMinutes,
		AllowLookups:       true,
		HourFormat:         Hour12,
	}
}

// Validate checks the ranges of user-editable fields.
func (p Preferences) Validate() error {
	if p.AutoRefreshMinutes < MinAutoRefreshMinutes || p.AutoRefreshMinutes > MaxAutoRefreshMinutes {
		return NewValidationError(fmt.Sprintf("Auto refresh must be between %d and %d minutes",
			MinAutoRefreshMinutes, MaxAutoRefreshMinutes))
	}
	if _, ok := ParseLabelLanguage(string(p.LabelLanguage)); !ok {
		return NewValidationError("Label language must be english, hebrew or both")
	}
	if p.HourFormat != Hour12 && p.HourFormat != Hour24 {
		return NewValidationError("Hour format must be 12h or 24h")
	}
	return p.CurrentLocation.Validate()
}

// Label is a bilingual display label.
type Label struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// LabelDelimiter separates the two languages in the legacy flat label form.
const LabelDelimiter = " / "

// ParseLabel splits "English / עברית" into its halves. Labels without the
// delimiter become a primary-only label.
func ParseLabel(s string) Label {
	s = strings.TrimSpace(s)
	primary, secondary, found := strings.Cut(s, LabelDelimiter)
	if !found {
		// Tolerate "A/B" without surrounding spaces.
		primary, secondary, found = strings.Cut(s, "/")
		if !found {
			return Label{Primary: s}
		}
	}
	return Label{Primary: strings.TrimSpace(primary), Secondary: strings.TrimSpace(secondary)}
}

// String joins the label back into the flat form.
func (l Label) String() string {
	if l.Secondary == "" {
		return l.Primary
	}
	return l.Primary + LabelDelimiter + l.Secondary
}

// Render picks the part of the label for the given language. A missing
// half falls back to the other one.
func (l Label) Render(lang LabelLanguage) string {
	switch lang {
	case LanguageEnglish:
		if l.Primary == "" {
			return l.Secondary
		}
		return l.Primary
	case LanguageHebrew:
		if l.Secondary == "" {
			return l.Primary
		}
		return l.Secondary
	default:
		return l.String()
	}
}

// ZmanDescriptor defines one computable time.
type ZmanDescriptor struct {
	ID     string   `json:"id"`
	Label  Label    `json:"label"`
	Method string   `json:"method"`
	Param  *float64 `json:"param,omitempty"`
}

// ZmanValue is the result of evaluating one descriptor; OK=false is absent.
type ZmanValue struct {
	At time.Time
	OK bool
}

// Present wraps a concrete time. A zero time stays absent.
func Present(t time.Time) ZmanValue {
	if t.IsZero() {
		return ZmanValue{}
	}
	return ZmanValue{At: t, OK: true}
}

// Absent is the value of a zman that could not be computed.
func Absent() ZmanValue { return ZmanValue{} }

// VisibilitySet maps zman ids to their visibility flag. Ids without an
// entry are visible.
type VisibilitySet map[string]bool

// Visible reports whether id should be shown.
func (v VisibilitySet) Visible(id string) bool {
	shown, ok := v[id]
	return !ok || shown
}
