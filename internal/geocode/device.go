package geocode

import (
	"context"
	"errors"
	"sync"
	"time"

	"luachboard/internal/model"
)

// PositionOptions mirror the knobs of a platform location request.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge is how old a cached fix may be.
	MaximumAge time.Duration
}

// DefaultPositionOptions are used for every device request.
var DefaultPositionOptions = PositionOptions{
	HighAccuracy: true,
	Timeout:      10 * time.Second,
	MaximumAge:   5 * time.Minute,
}

// Fix is one device position.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	At        time.Time `json:"timestamp"`
}

// Positioner obtains the device position. Failures are returned as
// *model.DeviceLocationError.
type Positioner interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error)
}

func deviceError(code model.DeviceErrorCode, err error) error {
	return &model.DeviceLocationError{Code: code, Err: err}
}

// StaticPositioner always reports the same fix, for boards without GPS
// whose position is fixed in configuration.
type StaticPositioner struct {
	Latitude  float64
	Longitude float64
}

func (p StaticPositioner) CurrentPosition(context.Context, PositionOptions) (Fix, error) {
	if err := model.ValidateLatLon(p.Latitude, p.Longitude); err != nil {
		return Fix{}, deviceError(model.DeviceErrPositionUnavailable, err)
	}
	return Fix{Latitude: p.Latitude, Longitude: p.Longitude, At: time.Now()}, nil
}

// DisabledPositioner refuses every request.
type DisabledPositioner struct{}

func (DisabledPositioner) CurrentPosition(context.Context, PositionOptions) (Fix, error) {
	return Fix{}, deviceError(model.DeviceErrPermissionDenied, errors.New("device location disabled"))
}

// ReportedPositioner is fed by a browser on the board which pushes the
// result of its own location request. CurrentPosition returns the latest
// fix if it is fresh enough, otherwise waits for the next report. A
// failure reported while nobody waits is handed to the next request.
type ReportedPositioner struct {
	mu      sync.Mutex
	last    Fix
	lastErr error
	pending error
	changed chan struct{}
	now     func() time.Time
}

func NewReportedPositioner() *ReportedPositioner {
	return &ReportedPositioner{changed: make(chan struct{}), now: time.Now}
}

// Report records a fix and wakes waiting requests. A zero At is stamped
// with the current time.
func (p *ReportedPositioner) Report(fix Fix) error {
	if err := model.ValidateLatLon(fix.Latitude, fix.Longitude); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if fix.At.IsZero() {
		fix.At = p.now()
	}
	p.last, p.lastErr, p.pending = fix, nil, nil
	p.broadcastLocked()
	return nil
}

// Fail passes a device-side failure to waiting requests.
func (p *ReportedPositioner) Fail(code model.DeviceErrorCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = deviceError(code, nil)
	p.pending = p.lastErr
	p.broadcastLocked()
}

func (p *ReportedPositioner) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// freshLocked reports whether the last fix is within maxAge.
func (p *ReportedPositioner) freshLocked(maxAge time.Duration) bool {
	return !p.last.At.IsZero() && p.now().Sub(p.last.At) <= maxAge
}

func (p *ReportedPositioner) CurrentPosition(ctx context.Context, opts PositionOptions) (Fix, error) {
	p.mu.Lock()
	if p.freshLocked(opts.MaximumAge) {
		fix := p.last
		p.mu.Unlock()
		return fix, nil
	}
	if err := p.pending; err != nil {
		p.pending = nil
		p.mu.Unlock()
		return Fix{}, err
	}
	wait := p.changed
	p.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultPositionOptions.Timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-wait:
			p.mu.Lock()
			if p.lastErr != nil {
				err := p.lastErr
				p.pending = nil
				p.mu.Unlock()
				return Fix{}, err
			}
			if p.freshLocked(opts.MaximumAge) {
				fix := p.last
				p.pending = nil
				p.mu.Unlock()
				return fix, nil
			}
			// A report that was already too old: keep waiting.
			wait = p.changed
			p.mu.Unlock()
		case <-timer.C:
			return Fix{}, deviceError(model.DeviceErrTimeout, nil)
		case <-ctx.Done():
			return Fix{}, deviceError(model.DeviceErrTimeout, ctx.Err())
		}
	}
}
