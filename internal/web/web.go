package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"luachboard/internal/board"
	"luachboard/internal/catalog"
	"luachboard/internal/config"
	"luachboard/internal/geocode"
	"luachboard/internal/location"
	appLog "luachboard/internal/log"
	"luachboard/internal/model"
	"luachboard/internal/zone"
)

// Server exposes the board over HTTP: a JSON API plus the embedded page.
type Server struct {
	cfg   *config.Config
	board *board.Board
	mux   *http.ServeMux

	// In-memory cache for /zmanim.ics so calendar clients polling the feed
	// do not recompute a week of zmanim on every request.
	feedMu    sync.RWMutex
	feedCache map[int]*feedCache
}

// embeddedStatic holds the status page served at /.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, b *board.Board) *Server {
	s := &Server{
		cfg:       cfg,
		board:     b,
		mux:       http.NewServeMux(),
		feedCache: map[int]*feedCache{},
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="LuachBoard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, b *board.Board) error {
	s := NewServer(cfg, b)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/zmanim", s.handleZmanim)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	s.mux.HandleFunc("GET /api/location", s.handleGetLocation)
	s.mux.HandleFunc("PUT /api/location", s.handlePutLocation)
	s.mux.HandleFunc("POST /api/location/zip", s.handleLocationZip)
	s.mux.HandleFunc("POST /api/location/coordinates", s.handleLocationCoordinates)
	s.mux.HandleFunc("POST /api/location/device", s.handleLocationDevice)
	s.mux.HandleFunc("POST /api/location/device/fix", s.handleDeviceFix)

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)

	s.mux.HandleFunc("GET /api/catalog", s.handleGetCatalog)
	s.mux.HandleFunc("POST /api/catalog", s.handleAddZman)
	s.mux.HandleFunc("POST /api/catalog/load", s.handleLoadCatalog)
	s.mux.HandleFunc("PUT /api/visibility/{id}", s.handleVisibility)

	s.mux.HandleFunc("GET /api/zone", s.handleZone)
	s.mux.HandleFunc("GET /zmanim.ics", s.handleFeed)

	// Everything else is the embedded page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleZmanim returns the board for today, or for ?date=YYYY-MM-DD when
// date navigation is enabled.
func (s *Server) handleZmanim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := r.URL.Query().Get("date")

	if date == "" {
		snap, ok := s.board.Snapshot()
		if !ok || snap.Date != s.board.Today().Format(board.DateLayout) {
			if err := s.board.Refresh(ctx); err != nil && !ok {
				writeErr(w, err)
				return
			}
			snap, _ = s.board.Snapshot()
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	day, err := s.board.ParseDate(date)
	if err != nil {
		writeErr(w, err)
		return
	}
	snap, err := s.board.Compute(ctx, day)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Refresh(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	s.dropFeedCache()
	snap, _ := s.board.Snapshot()
	writeJSON(w, http.StatusOK, snap)
}

// locationResponse is the JSON response shape for /api/location.
type locationResponse struct {
	Location    model.GeoPoint `json:"location"`
	Display     string         `json:"display"`
	Title       string         `json:"title"`
	HasLocation bool           `json:"has_location"`
}

func (s *Server) locationResponse() locationResponse {
	p := s.board.Location()
	return locationResponse{
		Location:    p,
		Display:     p.DisplayString(),
		Title:       s.board.Title(),
		HasLocation: s.board.HasLocation(),
	}
}

func (s *Server) handleGetLocation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.locationResponse())
}

// locationEdit is the body of PUT /api/location. Omitted fields keep
// their value.
type locationEdit struct {
	Name      *string  `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timezone  *string  `json:"timezone"`
	Elevation *float64 `json:"elevation"`
}

func (s *Server) handlePutLocation(w http.ResponseWriter, r *http.Request) {
	var req locationEdit
	if !readJSON(w, r, &req) {
		return
	}
	_, err := s.board.UpdateLocation(r.Context(), location.Update{
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timezone:  req.Timezone,
		Elevation: req.Elevation,
	}, model.SourceManual)
	s.respondLocation(w, err)
}

func (s *Server) handleLocationZip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Zip string `json:"zip"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	_, err := s.board.SetLocationFromZip(r.Context(), req.Zip)
	s.respondLocation(w, err)
}

// coordText accepts a coordinate typed as a JSON string or number so the
// page can pass form input through untouched.
type coordText string

func (c *coordText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = coordText(s)
		return nil
	}
	*c = coordText(data)
	return nil
}

func (s *Server) handleLocationCoordinates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude  coordText `json:"latitude"`
		Longitude coordText `json:"longitude"`
		Name      string    `json:"name"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	_, err := s.board.SetLocationFromCoordinates(r.Context(), string(req.Latitude), string(req.Longitude), req.Name)
	s.respondLocation(w, err)
}

// handleLocationDevice blocks until the page reports a fix or the device
// request times out.
func (s *Server) handleLocationDevice(w http.ResponseWriter, r *http.Request) {
	_, err := s.board.SetLocationFromDevice(r.Context())
	s.respondLocation(w, err)
}

// deviceFix is what the page posts after its own location request.
// Error is "denied", "unavailable" or "timeout" when the request failed.
type deviceFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Error     string  `json:"error"`
}

func (s *Server) handleDeviceFix(w http.ResponseWriter, r *http.Request) {
	var req deviceFix
	if !readJSON(w, r, &req) {
		return
	}

	var err error
	if req.Error != "" {
		err = s.board.ReportFailure(deviceErrorCode(req.Error))
	} else {
		err = s.board.ReportFix(geocode.Fix{Latitude: req.Latitude, Longitude: req.Longitude, Accuracy: req.Accuracy})
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func deviceErrorCode(s string) model.DeviceErrorCode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "denied", "permission_denied":
		return model.DeviceErrPermissionDenied
	case "unavailable", "position_unavailable":
		return model.DeviceErrPositionUnavailable
	case "timeout":
		return model.DeviceErrTimeout
	default:
		return model.DeviceErrUnknown
	}
}

func (s *Server) respondLocation(w http.ResponseWriter, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	s.dropFeedCache()
	writeJSON(w, http.StatusOK, s.locationResponse())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Preferences())
}

// handlePutSettings decodes the body over the current settings, so a
// partial document only changes what it names.
// handlePutSettings merges the body over the current preferences. A
// current_location in the body is ignored; /api/location edits it.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	prefs := s.board.Preferences()
	if !readJSON(w, r, &prefs) {
		return
	}
	if err := s.board.SaveSettings(r.Context(), prefs); err != nil {
		writeErr(w, err)
		return
	}
	s.dropFeedCache()
	writeJSON(w, http.StatusOK, s.board.Preferences())
}

// catalogResponse is the JSON response shape for /api/catalog.
type catalogResponse struct {
	Zmanim     []model.ZmanDescriptor `json:"zmanim"`
	Visibility model.VisibilitySet    `json:"visibility"`
	Ready      bool                   `json:"ready"`
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Zmanim:     s.board.Catalog(),
		Visibility: s.board.Visibility(),
		Ready:      s.board.Ready(),
	})
}

func (s *Server) handleAddZman(w http.ResponseWriter, r *http.Request) {
	var rec catalog.Record
	if !readJSON(w, r, &rec) {
		return
	}
	if err := s.board.AddZman(r.Context(), rec.Descriptor()); err != nil {
		writeErr(w, err)
		return
	}
	s.dropFeedCache()
	s.handleGetCatalog(w, r)
}

func (s *Server) handleLoadCatalog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if r.ContentLength != 0 && !readJSON(w, r, &req) {
		return
	}
	if err := s.board.LoadCatalog(r.Context(), req.URL); err != nil {
		writeErr(w, err)
		return
	}
	s.dropFeedCache()
	s.handleGetCatalog(w, r)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible *bool `json:"visible"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, "visible is required")
		return
	}
	if err := s.board.SetVisible(r.Context(), r.PathValue("id"), *req.Visible); err != nil {
		writeErr(w, err)
		return
	}
	s.dropFeedCache()
	s.handleGetCatalog(w, r)
}

// zoneResponse is the JSON response shape for /api/zone.
type zoneResponse struct {
	Timezone string `json:"timezone"`
	Rule     string `json:"rule,omitempty"`
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon, err := geocode.ValidateCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeErr(w, err)
		return
	}
	tz, rule := zone.ResolveRule(lat, lon)
	writeJSON(w, http.StatusOK, zoneResponse{Timezone: tz, Rule: rule})
}

// feedCache holds a rendered feed and its timestamp.
type feedCache struct {
	body      string
	updatedAt time.Time
}

// handleFeed serves the next ?days=N days as iCalendar.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), 0)
	if days < 0 {
		days = 0
	}

	const feedCacheTTL = 30 * time.Second
	now := time.Now()

	s.feedMu.RLock()
	fc := s.feedCache[days]
	s.feedMu.RUnlock()
	if fc != nil && now.Sub(fc.updatedAt) < feedCacheTTL {
		writeCalendar(w, fc.body)
		return
	}

	body, err := s.board.Feed(r.Context(), days)
	if err != nil {
		appLog.Error("feed build failed", err, "days", days)
		writeErr(w, err)
		return
	}

	s.feedMu.Lock()
	s.feedCache[days] = &feedCache{body: body, updatedAt: time.Now()}
	s.feedMu.Unlock()

	writeCalendar(w, body)
}

func (s *Server) dropFeedCache() {
	s.feedMu.Lock()
	s.feedCache = map[int]*feedCache{}
	s.feedMu.Unlock()
}

func writeCalendar(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="zmanim.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// staticFileServer serves the embedded page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* paths are a 404, never the HTML page.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// readJSON decodes the body into v, answering 400 itself on failure.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

// writeErr maps a structured error onto a status code.
func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errResp{Error: err.Error(), Kind: string(model.KindOf(err))})
}

func statusFor(err error) int {
	if errors.Is(err, model.ErrCalculatorUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindResolution:
		return http.StatusBadGateway
	case model.KindDeviceLocation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
