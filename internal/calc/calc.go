// Package calc defines the narrow interface the zmanim engine uses to
// reach an astronomical calculator, a readiness gate for calculators that
// load asynchronously, and the built-in sun-position calculator.
package calc

import (
	"context"
	"errors"
	"sync"
	"time"

	"luachboard/internal/model"
)

// ErrUnknownMethod is returned by Calendar.Call/CallWith for names the
// calculator does not expose.
var ErrUnknownMethod = errors.New("unknown calculator method")

// MethodSet is what a calculator exposes, in its own enumeration order.
// Zero holds operations taking no argument, One those taking one number.
type MethodSet struct {
	Zero []string
	One  []string
}

func (m MethodSet) HasZero(name string) bool { return contains(m.Zero, name) }

func (m MethodSet) HasOne(name string) bool { return contains(m.One, name) }

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

// Calculator is the external astronomical and calendar collaborator.
type Calculator interface {
	// Methods enumerates the callable operations.
	Methods() MethodSet
	// NewCalendar builds a calendar bound to a location.
	NewCalendar(point model.GeoPoint) (Calendar, error)
	// HasCandleLighting reports whether date is a Friday or the eve of a
	// Yom Tov.
	HasCandleLighting(date time.Time, inIsrael bool) bool
	// HebrewDate converts a civil date.
	HebrewDate(date time.Time) (HebrewDate, error)
}

// Calendar computes times for one location and one date at a time.
// A zero time.Time with a nil error means the time does not occur that
// day (e.g. no sunset near the poles).
type Calendar interface {
	SetDate(date time.Time)
	Call(method string) (time.Time, error)
	CallWith(method string, arg float64) (time.Time, error)
}

// Loader produces a calculator, possibly slowly.
type Loader func(ctx context.Context) (Calculator, error)

// Gate resolves exactly once: the first Start (or Wait) runs the loader
// and every waiter sees the same result. Waiting on an already-resolved
// gate returns immediately.
type Gate struct {
	load Loader
	once sync.Once
	done chan struct{}
	calc Calculator
	err  error
}

// NewGate wraps a loader. Loading begins on the first Start or Wait.
func NewGate(load Loader) *Gate {
	return &Gate{load: load, done: make(chan struct{})}
}

// ReadyGate wraps a calculator that needs no loading.
func ReadyGate(c Calculator) *Gate {
	g := NewGate(func(context.Context) (Calculator, error) { return c, nil })
	g.Start(context.Background())
	<-g.done
	return g
}

// Start begins loading in the background. Later calls do nothing.
func (g *Gate) Start(ctx context.Context) {
	g.once.Do(func() {
		go func() {
			defer close(g.done)
			c, err := g.load(ctx)
			if err == nil && c == nil {
				err = errors.New("loader returned no calculator")
			}
			g.calc, g.err = c, err
		}()
	})
}

// Wait blocks until the gate resolves or ctx ends.
func (g *Gate) Wait(ctx context.Context) (Calculator, error) {
	g.Start(context.WithoutCancel(ctx))
	select {
	case <-g.done:
		return g.calc, g.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether the gate resolved successfully.
func (g *Gate) Ready() bool {
	select {
	case <-g.done:
		return g.err == nil
	default:
		return false
	}
}

// Calculator returns the loaded calculator without blocking.
func (g *Gate) Calculator() (Calculator, bool) {
	if !g.Ready() {
		return nil, false
	}
	return g.calc, true
}

// Done is closed once loading finished, successfully or not.
func (g *Gate) Done() <-chan struct{} { return g.done }
