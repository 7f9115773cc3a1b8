// Package geocode turns user-supplied location input (zip codes, typed
// coordinates, device fixes) into named places.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	appLog "luachboard/internal/log"
	"luachboard/internal/model"
)

// AllFailedMessage is the error text when neither the offline
// table nor any remote provider could resolve a zip code.
const AllFailedMessage = "Unable to geocode zip code with any available service"

var zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// Place is a successful lookup.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Provider names who answered, e.g. "LocalZipDB", "Nominatim", "GPS".
	Provider string `json:"provider"`
	// Accuracy in meters, device fixes only.
	Accuracy float64 `json:"accuracy,omitempty"`
}

// Source maps the answering provider onto the provenance stored with a
// location.
func (p Place) Source() model.Source {
	switch p.Provider {
	case providerLocal:
		return model.SourceLocalDatabase
	case providerGPS:
		return model.SourceGPS
	default:
		return model.SourceZipCode
	}
}

const (
	providerLocal = "LocalZipDB"
	providerGPS   = "GPS"
)

// Provider resolves a validated zip code remotely.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, zip string) (Place, error)
}

// Options configure a Service.
type Options struct {
	// Table is consulted before any provider. May be nil.
	Table *Table
	// Providers are tried in order after a table miss.
	Providers []Provider
	// Reverse names device fixes. May be nil.
	Reverse *Nominatim
	// Positioner supplies device fixes. May be nil.
	Positioner Positioner
}

// Service is the geocoding front door.
type Service struct {
	table      *Table
	providers  []Provider
	reverse    *Nominatim
	positioner Positioner
	remote     atomic.Bool
}

// NewService builds a service with remote lookups enabled.
func NewService(opts Options) *Service {
	s := &Service{
		table:      opts.Table,
		providers:  opts.Providers,
		reverse:    opts.Reverse,
		positioner: opts.Positioner,
	}
	s.remote.Store(true)
	return s
}

// SetRemoteLookups turns the network providers on or off. With lookups off
// only the offline table answers zip codes and device fixes are named by
// their coordinates.
func (s *Service) SetRemoteLookups(on bool) {
	s.remote.Store(on)
}

// ValidateZip trims s and checks the 12345 / 12345-6789 form.
func ValidateZip(s string) (string, error) {
	zip := strings.TrimSpace(s)
	if !zipPattern.MatchString(zip) {
		return "", model.NewValidationError("Invalid zip code format (use 12345 or 12345-6789)")
	}
	return zip, nil
}

// ValidateCoordinates parses typed latitude and longitude.
func ValidateCoordinates(lat, lon string) (float64, float64, error) {
	la, errLat := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, errLon := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if errLat != nil || errLon != nil {
		return 0, 0, model.NewValidationError("Coordinates must be numbers")
	}
	if err := model.ValidateLatLon(la, lo); err != nil {
		return 0, 0, err
	}
	return la, lo, nil
}

// GeocodeZip validates zip and resolves it: offline table first, then each
// provider in order until one succeeds. Misses are not cached.
func (s *Service) GeocodeZip(ctx context.Context, zip string) (Place, error) {
	zip, err := ValidateZip(zip)
	if err != nil {
		return Place{}, err
	}

	if s.table != nil {
		if p, ok := s.table.Lookup(zip); ok {
			appLog.Debug("zip resolved from offline table", "zip", zip, "name", p.Name)
			return p, nil
		}
	}

	if !s.remote.Load() {
		return Place{}, model.NewResolutionError(AllFailedMessage, errors.New("remote lookups disabled"))
	}

	var errs []error
	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		place, err := p.Lookup(ctx, zip)
		if err != nil {
			appLog.Warn("zip provider failed", "provider", p.Name(), "zip", zip, "err", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		appLog.Info("zip resolved", "provider", p.Name(), "zip", zip, "name", place.Name)
		return place, nil
	}
	return Place{}, model.NewResolutionError(AllFailedMessage, errors.Join(errs...))
}

// ReverseGeocode returns a short "City, Region" name for the coordinates,
// or "" when it cannot.
func (s *Service) ReverseGeocode(ctx context.Context, lat, lon float64) string {
	if s.reverse == nil || !s.remote.Load() {
		return ""
	}
	name, err := s.reverse.Reverse(ctx, lat, lon)
	if err != nil {
		appLog.Warn("reverse geocode failed", "err", err.Error())
		return ""
	}
	return name
}

// CurrentDeviceLocation asks the positioner for one fix and names it.
func (s *Service) CurrentDeviceLocation(ctx context.Context) (Place, error) {
	if s.positioner == nil {
		return Place{}, (&model.DeviceLocationError{
			Code: model.DeviceErrPositionUnavailable,
			Err:  errors.New("no positioner configured"),
		}).AsError()
	}

	fix, err := s.positioner.CurrentPosition(ctx, DefaultPositionOptions)
	if err != nil {
		var devErr *model.DeviceLocationError
		if !errors.As(err, &devErr) {
			devErr = &model.DeviceLocationError{Code: model.DeviceErrUnknown, Err: err}
		}
		return Place{}, devErr.AsError()
	}

	name := s.ReverseGeocode(ctx, fix.Latitude, fix.Longitude)
	if name == "" {
		name = model.CoordinateName(fix.Latitude, fix.Longitude)
	}
	return Place{
		Name:      name,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Provider:  providerGPS,
		Accuracy:  fix.Accuracy,
	}, nil
}

// NewHTTPClient is the client shared by the providers.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
