package location

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luachboard/internal/model"
	"luachboard/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestLoadDefaults(t *testing.T) {
	s := New(store.NewMemStore())
	require.NoError(t, s.Load())

	cur := s.Current()
	assert.Equal(t, "New York, NY", cur.Name)
	assert.Equal(t, 40.7128, cur.Latitude)
	assert.Equal(t, -74.0060, cur.Longitude)
	assert.Equal(t, "America/New_York", cur.Timezone)
	assert.Equal(t, model.SourceDefault, cur.Source)
	assert.True(t, s.HasLocation())
	assert.Equal(t, model.DefaultPreferences(), s.Preferences())
	assert.Equal(t, "New York, NY (40.7128, -74.0060)", s.DisplayString())
}

func TestLoadCorruptValuesAreAbsent(t *testing.T) {
	kv := store.NewMemStore()
	require.NoError(t, kv.Set(KeyLocation, "{not json"))
	require.NoError(t, kv.Set(KeyAutoRefreshMinutes, "9999"))
	require.NoError(t, kv.Set(KeyShowSeconds, "maybe"))
	require.NoError(t, kv.Set(KeyLabelLanguage, "klingon"))
	require.NoError(t, kv.Set(KeyVisibility, "[1,2]"))

	s := New(kv)
	require.NoError(t, s.Load())
	assert.Equal(t, model.DefaultPreferences(), s.Preferences())
	assert.Empty(t, s.Visibility())
}

func TestUpdateResolvesTimezoneAndPersists(t *testing.T) {
	kv := store.NewMemStore()
	s := New(kv)
	fixed := time.Date(2024, 10, 3, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ok := s.Update(Update{Latitude: ptr(31.7683), Longitude: ptr(35.2137), Name: ptr("Jerusalem")}, model.SourceManual)
	require.True(t, ok)

	cur := s.Current()
	assert.Equal(t, "Asia/Jerusalem", cur.Timezone)
	assert.Equal(t, model.SourceManual, cur.Source)
	assert.Equal(t, fixed, cur.ResolvedAt)
	assert.True(t, s.HasLocation())

	reloaded := New(kv)
	require.NoError(t, reloaded.Load())
	if diff := cmp.Diff(cur, reloaded.Current()); diff != "" {
		t.Errorf("reloaded location mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateWithoutNameUsesCoordinates(t *testing.T) {
	s := New(store.NewMemStore())
	_, err := s.Apply(Update{Latitude: ptr(41.0), Longitude: ptr(-87.5), Name: ptr("")}, model.SourceGPS)
	require.NoError(t, err)
	assert.Equal(t, "41.0000, -87.5000", s.Current().Name)
	assert.Equal(t, "America/Chicago", s.Current().Timezone)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	s := New(store.NewMemStore())
	before := s.Current()

	_, err := s.Apply(Update{Latitude: ptr(123.0)}, model.SourceManual)
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.Equal(t, before, s.Current())

	_, err = s.Apply(Update{Timezone: ptr("Nowhere/Special")}, model.SourceManual)
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.Equal(t, before, s.Current())
}

func TestUpdatePersistenceFailureLeavesState(t *testing.T) {
	kv := store.NewMemStore()
	s := New(kv)
	before := s.Current()
	kv.FailWrites = true

	ok := s.Update(Update{Latitude: ptr(32.08), Longitude: ptr(34.78)}, model.SourceManual)
	assert.False(t, ok)
	assert.Equal(t, before, s.Current())

	_, err := s.Apply(Update{Latitude: ptr(32.08), Longitude: ptr(34.78)}, model.SourceManual)
	assert.True(t, model.IsKind(err, model.KindPersistence))
}

func TestExplicitTimezoneWins(t *testing.T) {
	s := New(store.NewMemStore())
	_, err := s.Apply(Update{Latitude: ptr(40.7), Longitude: ptr(-74.0), Timezone: ptr("America/Toronto")}, model.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, "America/Toronto", s.Current().Timezone)

	// A rename does not move the point, so the zone is kept.
	_, err = s.Apply(Update{Name: ptr("Office")}, model.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, "America/Toronto", s.Current().Timezone)
}

func TestCustomTitle(t *testing.T) {
	kv := store.NewMemStore()
	s := New(kv)

	require.NoError(t, s.SetCustomTitle("  Beis Medrash  "))
	assert.Equal(t, "Beis Medrash", s.CustomTitle())
	v, ok, _ := kv.Get(KeyCustomTitle)
	assert.True(t, ok)
	assert.Equal(t, "Beis Medrash", v)

	require.NoError(t, s.SetCustomTitle(""))
	assert.Empty(t, s.CustomTitle())
	_, ok, _ = kv.Get(KeyCustomTitle)
	assert.False(t, ok)
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	kv, err := store.NewFileStore(path)
	require.NoError(t, err)

	s := New(kv)
	p := s.Preferences()
	p.CustomTitle = "Shul"
	p.LabelLanguage = model.LanguageHebrew
	p.ShowSeconds = true
	p.AutoRefreshMinutes = 15
	p.AllowDateNavigation = true
	p.AllowLookups = false
	p.DebugMode = true
	p.HourFormat = model.Hour24
	p.CurrentLocation = model.GeoPoint{Name: "Lakewood, NJ", Latitude: 40.0821, Longitude: -74.2097, Source: model.SourceZipCode}
	require.NoError(t, s.SaveSettings(p))
	require.NoError(t, kv.Close())

	kv2, err := store.NewFileStore(path)
	require.NoError(t, err)
	reloaded := New(kv2)
	require.NoError(t, reloaded.Load())

	p.CurrentLocation.Timezone = "America/New_York"
	if diff := cmp.Diff(p, reloaded.Preferences()); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveSettingsValidation(t *testing.T) {
	s := New(store.NewMemStore())
	p := s.Preferences()
	p.AutoRefreshMinutes = 0
	err := s.SaveSettings(p)
	assert.True(t, model.IsKind(err, model.KindValidation))

	p = s.Preferences()
	p.LabelLanguage = "en"
	require.NoError(t, s.SaveSettings(p))
	assert.Equal(t, model.LanguageEnglish, s.Preferences().LabelLanguage)
}

func TestSaveSettingsIsAtomic(t *testing.T) {
	kv := store.NewMemStore()
	s := New(kv)
	before := s.Preferences()
	kv.FailWrites = true

	p := before
	p.ShowSeconds = true
	err := s.SaveSettings(p)
	assert.True(t, model.IsKind(err, model.KindPersistence))
	assert.Equal(t, before, s.Preferences())
	_, ok, _ := kv.Get(KeyShowSeconds)
	assert.False(t, ok)
}

func TestVisibility(t *testing.T) {
	kv := store.NewMemStore()
	s := New(kv)
	assert.True(t, s.IsVisible("sunrise"))

	require.NoError(t, s.SetVisible("sunrise", false))
	require.NoError(t, s.SetVisible("chatzos", true))
	assert.False(t, s.IsVisible("sunrise"))

	reloaded := New(kv)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, model.VisibilitySet{"sunrise": false, "chatzos": true}, reloaded.Visibility())

	kv.FailWrites = true
	assert.Error(t, s.SetVisible("chatzos", false))
	assert.True(t, s.IsVisible("chatzos"))
}

func TestHasLocationNeedsNumericCoordinates(t *testing.T) {
	s := New(store.NewMemStore())
	require.NoError(t, s.Load())
	assert.True(t, s.HasLocation())

	s.prefs.CurrentLocation.Latitude = math.NaN()
	assert.False(t, s.HasLocation())
}
