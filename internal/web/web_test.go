package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luachboard/internal/board"
	"luachboard/internal/calc"
	"luachboard/internal/config"
	"luachboard/internal/geocode"
	"luachboard/internal/model"
	"luachboard/internal/store"
)

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	rep := geocode.NewReportedPositioner()
	geo := geocode.NewService(geocode.Options{
		Table: geocode.NewTableFromEntries(map[string]geocode.Place{
			"08701": {Name: "Lakewood, NJ", Latitude: 40.0821, Longitude: -74.2097},
		}),
		Positioner: rep,
	})
	b, err := board.New(board.Options{
		Store:    store.NewMemStore(),
		Gate:     calc.ReadyGate(calc.NewSunCalculator(calc.SunOptions{})),
		Geocoder: geo,
		Reporter: rep,
		FeedDays: 2,
		Now:      func() time.Time { return time.Date(2024, 10, 4, 15, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return NewServer(cfg, b).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestBasicAuthSkipsHealth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "gabbai", Password: "secret"}
	h := newTestServer(t, cfg)

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/zmanim", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "LuachBoard")

	req := httptest.NewRequest(http.MethodGet, "/api/zmanim", nil)
	req.SetBasicAuth("gabbai", "secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestZmanimToday(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/zmanim", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var snap struct {
		Date   string `json:"date"`
		Title  string `json:"title"`
		Zmanim []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
			Time  string `json:"time"`
		} `json:"zmanim"`
	}
	decode(t, rec, &snap)
	assert.Equal(t, "2024-10-04", snap.Date)
	assert.Equal(t, "New York, NY", snap.Title)
	require.NotEmpty(t, snap.Zmanim)
	ids := make([]string, 0, len(snap.Zmanim))
	for _, z := range snap.Zmanim {
		ids = append(ids, z.ID)
		assert.NotEqual(t, "--:--", z.Time, z.ID)
	}
	assert.Contains(t, ids, "candleLighting")
}

func TestZmanimDateNavigation(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/zmanim?date=2024-10-06", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var e errResp
	decode(t, rec, &e)
	assert.Equal(t, "Date navigation is disabled", e.Error)
	assert.Equal(t, "validation", e.Kind)

	rec = do(t, h, http.MethodPut, "/api/settings", `{"allow_date_navigation": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/zmanim?date=2024-10-06", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "candleLighting")
}

func TestLocationEndpoints(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/location", "")
	var loc locationResponse
	decode(t, rec, &loc)
	assert.True(t, loc.HasLocation)
	assert.Equal(t, model.SourceDefault, loc.Location.Source)
	assert.Equal(t, "New York, NY (40.7128, -74.0060)", loc.Display)

	rec = do(t, h, http.MethodPost, "/api/location/coordinates", `{"latitude": 31.7683, "longitude": "35.2137", "name": "Jerusalem"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &loc)
	assert.True(t, loc.HasLocation)
	assert.Equal(t, "Jerusalem", loc.Title)
	assert.Equal(t, "Asia/Jerusalem", loc.Location.Timezone)

	rec = do(t, h, http.MethodPost, "/api/location/coordinates", `{"latitude": "abc", "longitude": "35"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Coordinates must be numbers")

	rec = do(t, h, http.MethodPost, "/api/location/zip", `{"zip": "08701"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &loc)
	assert.Equal(t, "Lakewood, NJ", loc.Location.Name)
	assert.Equal(t, model.SourceLocalDatabase, loc.Location.Source)

	rec = do(t, h, http.MethodPost, "/api/location/zip", `{"zip": "8701"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/location", `{"elevation": 800, "timezone": "America/Chicago"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &loc)
	assert.Equal(t, "Lakewood, NJ", loc.Location.Name)
	assert.Equal(t, 800.0, loc.Location.Elevation)
	assert.Equal(t, "America/Chicago", loc.Location.Timezone)

	rec = do(t, h, http.MethodPut, "/api/location", `{"timezone": "Mars/Olympus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/location", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceLocationFlow(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/location/device/fix", `{"error": "denied"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/location/device", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Location access denied by user")

	rec = do(t, h, http.MethodPost, "/api/location/device/fix", `{"latitude": 40.6782, "longitude": -73.9442, "accuracy": 20}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/location/device", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var loc locationResponse
	decode(t, rec, &loc)
	assert.Equal(t, model.SourceGPS, loc.Location.Source)
	assert.Equal(t, "40.6782, -73.9442", loc.Location.Name)
}

func TestSettingsPartialUpdate(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPut, "/api/settings", `{"hour_format": "24h", "custom_title": "Beis Medrash"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var prefs model.Preferences
	decode(t, rec, &prefs)
	assert.Equal(t, model.Hour24, prefs.HourFormat)
	assert.Equal(t, "Beis Medrash", prefs.CustomTitle)
	assert.Equal(t, model.DefaultAutoRefreshMinutes, prefs.AutoRefreshMinutes)
	assert.Equal(t, model.LanguageBoth, prefs.LabelLanguage)

	rec = do(t, h, http.MethodPut, "/api/settings", `{"auto_refresh_minutes": 5000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/settings", "")
	decode(t, rec, &prefs)
	assert.Equal(t, model.DefaultAutoRefreshMinutes, prefs.AutoRefreshMinutes)
}

func TestSettingsIgnoreLocation(t *testing.T) {
	h := newTestServer(t, nil)

	body := `{"show_seconds": true, "current_location": {"name": "Jerusalem", "latitude": 31.7683, "longitude": 35.2137, "timezone": "Asia/Jerusalem", "method": "gps"}}`
	rec := do(t, h, http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var prefs model.Preferences
	decode(t, rec, &prefs)
	assert.True(t, prefs.ShowSeconds)
	assert.Equal(t, "New York, NY", prefs.CurrentLocation.Name)
	assert.Equal(t, model.SourceDefault, prefs.CurrentLocation.Source)

	rec = do(t, h, http.MethodGet, "/api/location", "")
	var loc locationResponse
	decode(t, rec, &loc)
	assert.Equal(t, "America/New_York", loc.Location.Timezone)
}

func TestCatalogAndVisibility(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/catalog", "")
	var cat catalogResponse
	decode(t, rec, &cat)
	assert.Len(t, cat.Zmanim, 17)
	assert.True(t, cat.Ready)

	rec = do(t, h, http.MethodPut, "/api/visibility/sunrise", `{"visible": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &cat)
	assert.False(t, cat.Visibility.Visible("sunrise"))

	rec = do(t, h, http.MethodPut, "/api/visibility/sunrise", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/zmanim", "")
	assert.NotContains(t, rec.Body.String(), `"id":"sunrise"`)

	rec = do(t, h, http.MethodPost, "/api/catalog", `{"id": "tzais-rt", "label": "Tzais R\"T / צאת ר\"ת", "method": "getTimeOffsetFromSunset(72)"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &cat)
	assert.Len(t, cat.Zmanim, 18)

	rec = do(t, h, http.MethodPost, "/api/catalog", `{"id": "nope", "label": "Nope", "method": "getNoSuchThing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/catalog/load", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestZone(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/zone?lat=31.77&lon=35.21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var z zoneResponse
	decode(t, rec, &z)
	assert.Equal(t, "Asia/Jerusalem", z.Timezone)

	rec = do(t, h, http.MethodGet, "/api/zone?lat=0&lon=0", "")
	decode(t, rec, &z)
	assert.Equal(t, "America/New_York", z.Timezone)
	assert.Empty(t, z.Rule)

	rec = do(t, h, http.MethodGet, "/api/zone?lat=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeed(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/zmanim.ics?days=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Contains(t, body, "BEGIN:VEVENT")

	// Served from the cache the second time.
	again := do(t, h, http.MethodGet, "/zmanim.ics?days=2", "")
	assert.Equal(t, body, again.Body.String())
}

func TestStaticAndUnknownAPI(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Luach Board")

	rec = do(t, h, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.NewValidationError("bad"), http.StatusBadRequest},
		{model.NewResolutionError("gone", nil), http.StatusBadGateway},
		{model.ErrCalculatorUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", model.ErrCalculatorUnavailable), http.StatusServiceUnavailable},
		{model.NewPersistenceError("disk", nil), http.StatusInternalServerError},
		{(&model.DeviceLocationError{Code: model.DeviceErrTimeout}).AsError(), http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}
