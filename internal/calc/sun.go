package calc

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/nathan-osman/go-sunrise"

	"luachboard/internal/model"
)

// Solar depression angles (degrees below the horizon) used by the
// built-in zmanim.
const (
	alosDegrees             = 16.1
	misheyakir10Point2      = 10.2
	misheyakir11Degrees     = 11.0
	misheyakir11Point5      = 11.5
	tzaisDegrees            = 8.5
	tzaisBaalHatanyaDegrees = 6.0
	// Geometric horizon plus refraction and solar radius.
	horizonDegrees = 0.833

	earthRadiusKm = 6356.9
)

// SunOptions tune the built-in calculator.
type SunOptions struct {
	// CandleLightingOffset is subtracted from sunset. Zero means 18 minutes.
	CandleLightingOffset time.Duration
}

// SunCalculator implements Calculator on top of go-sunrise. Times that
// depend on sunrise/sunset use elevation-adjusted values; proportional
// hours (sha'os zmaniyos) use sea-level values.
type SunCalculator struct {
	candleOffset time.Duration
	zero         map[string]func(*sunDay) time.Time
	one          map[string]func(*sunDay, float64) time.Time
	methods      MethodSet
}

// NewSunCalculator builds the calculator and its method table.
func NewSunCalculator(opts SunOptions) *SunCalculator {
	c := &SunCalculator{candleOffset: opts.CandleLightingOffset}
	if c.candleOffset <= 0 {
		c.candleOffset = 18 * time.Minute
	}

	zero := []struct {
		name string
		fn   func(*sunDay) time.Time
	}{
		{"getSunrise", (*sunDay).sunrise},
		{"getSunset", (*sunDay).sunset},
		{"getSeaLevelSunrise", (*sunDay).seaLevelSunrise},
		{"getSeaLevelSunset", (*sunDay).seaLevelSunset},
		{"getAlosHashachar", func(d *sunDay) time.Time { return d.morningAt(alosDegrees) }},
		{"getAlos72", func(d *sunDay) time.Time { return d.alos72() }},
		{"getMisheyakir10Point2Degrees", func(d *sunDay) time.Time { return d.morningAt(misheyakir10Point2) }},
		{"getMisheyakir11Degrees", func(d *sunDay) time.Time { return d.morningAt(misheyakir11Degrees) }},
		{"getMisheyakir11Point5Degrees", func(d *sunDay) time.Time { return d.morningAt(misheyakir11Point5) }},
		{"getSofZmanShmaGRA", func(d *sunDay) time.Time { return d.gra(3) }},
		{"getSofZmanShmaMGA", func(d *sunDay) time.Time { return d.mga(3) }},
		{"getSofZmanTfilaGRA", func(d *sunDay) time.Time { return d.gra(4) }},
		{"getSofZmanTfilaMGA", func(d *sunDay) time.Time { return d.mga(4) }},
		{"getChatzos", func(d *sunDay) time.Time { return d.gra(6) }},
		{"getMinchaGedola", func(d *sunDay) time.Time { return d.gra(6.5) }},
		{"getMinchaKetana", func(d *sunDay) time.Time { return d.gra(9.5) }},
		{"getPlagHamincha", func(d *sunDay) time.Time { return d.mga(10.75) }},
		{"getPlagHaminchaGRA", func(d *sunDay) time.Time { return d.gra(10.75) }},
		{"getTzais", func(d *sunDay) time.Time { return d.eveningAt(tzaisDegrees) }},
		{"getTzais72", func(d *sunDay) time.Time { return d.tzais72() }},
		{"getTzaisBaalHatanya", func(d *sunDay) time.Time { return d.eveningAt(tzaisBaalHatanyaDegrees) }},
		{"getCandleLighting", func(d *sunDay) time.Time { return offset(d.seaLevelSunset(), -c.candleOffset) }},
	}
	one := []struct {
		name string
		fn   func(*sunDay, float64) time.Time
	}{
		{"getSunriseOffsetByDegrees", func(d *sunDay, deg float64) time.Time { return d.morningAt(depression(deg)) }},
		{"getSunsetOffsetByDegrees", func(d *sunDay, deg float64) time.Time { return d.eveningAt(depression(deg)) }},
		{"getTimeOffsetFromSunrise", func(d *sunDay, mins float64) time.Time { return offset(d.sunrise(), minutes(mins)) }},
		{"getTimeOffsetFromSunset", func(d *sunDay, mins float64) time.Time { return offset(d.sunset(), minutes(mins)) }},
		{"getAlosHashachar", func(d *sunDay, deg float64) time.Time { return d.morningAt(depression(deg)) }},
		{"getTzais", func(d *sunDay, deg float64) time.Time { return d.eveningAt(depression(deg)) }},
		{"getShaahZmanisGRAOffset", func(d *sunDay, hours float64) time.Time { return d.gra(hours) }},
		{"getShaahZmanisMGAOffset", func(d *sunDay, hours float64) time.Time { return d.mga(hours) }},
	}

	c.zero = make(map[string]func(*sunDay) time.Time, len(zero))
	c.one = make(map[string]func(*sunDay, float64) time.Time, len(one))
	for _, z := range zero {
		c.zero[z.name] = z.fn
		c.methods.Zero = append(c.methods.Zero, z.name)
	}
	for _, o := range one {
		c.one[o.name] = o.fn
		c.methods.One = append(c.methods.One, o.name)
	}
	return c
}

func (c *SunCalculator) Methods() MethodSet {
	return MethodSet{
		Zero: append([]string(nil), c.methods.Zero...),
		One:  append([]string(nil), c.methods.One...),
	}
}

func (c *SunCalculator) NewCalendar(point model.GeoPoint) (Calendar, error) {
	if err := point.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(point.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", point.Timezone, err)
	}
	return &sunCalendar{calc: c, point: point, loc: loc}, nil
}

func (c *SunCalculator) HasCandleLighting(date time.Time, inIsrael bool) bool {
	return HasCandleLighting(date, inIsrael)
}

func (c *SunCalculator) HebrewDate(date time.Time) (HebrewDate, error) {
	if date.IsZero() {
		return HebrewDate{}, fmt.Errorf("zero date")
	}
	return ToHebrew(date), nil
}

type sunCalendar struct {
	calc  *SunCalculator
	point model.GeoPoint
	loc   *time.Location
	day   *sunDay
}

// SetDate selects the civil day given by date's year, month and day.
// The clock part and location of date are ignored.
func (s *sunCalendar) SetDate(date time.Time) {
	y, m, d := date.Date()
	s.day = &sunDay{
		lat:       s.point.Latitude,
		lon:       s.point.Longitude,
		elevation: s.point.Elevation,
		year:      y,
		month:     m,
		dom:       d,
		loc:       s.loc,
	}
}

func (s *sunCalendar) Call(method string) (time.Time, error) {
	fn, ok := s.calc.zero[method]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if s.day == nil {
		return time.Time{}, fmt.Errorf("calendar date not set")
	}
	return fn(s.day), nil
}

func (s *sunCalendar) CallWith(method string, arg float64) (time.Time, error) {
	fn, ok := s.calc.one[method]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s(%v)", ErrUnknownMethod, method, arg)
	}
	if s.day == nil {
		return time.Time{}, fmt.Errorf("calendar date not set")
	}
	if math.IsNaN(arg) || math.IsInf(arg, 0) {
		return time.Time{}, fmt.Errorf("invalid argument %v for %s", arg, method)
	}
	return fn(s.day, arg), nil
}

// sunDay memoizes the sunrise/sunset pair for one day.
type sunDay struct {
	lat, lon, elevation float64
	year                int
	month               time.Month
	dom                 int
	loc                 *time.Location

	seaRise, seaSet time.Time
	seaDone         bool
}

func (d *sunDay) local(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(d.loc)
}

func (d *sunDay) seaLevel() (time.Time, time.Time) {
	if !d.seaDone {
		rise, set := sunrise.SunriseSunset(d.lat, d.lon, d.year, d.month, d.dom)
		d.seaRise, d.seaSet = d.local(rise), d.local(set)
		d.seaDone = true
	}
	return d.seaRise, d.seaSet
}

func (d *sunDay) seaLevelSunrise() time.Time {
	rise, _ := d.seaLevel()
	return rise
}

func (d *sunDay) seaLevelSunset() time.Time {
	_, set := d.seaLevel()
	return set
}

// elevationAdjustment is the extra depression of the visible horizon for
// an observer elevation meters above the surroundings.
func (d *sunDay) elevationAdjustment() float64 {
	if d.elevation <= 0 {
		return 0
	}
	return math.Acos(earthRadiusKm/(earthRadiusKm+d.elevation/1000)) * 180 / math.Pi
}

func (d *sunDay) sunrise() time.Time {
	if d.elevation <= 0 {
		return d.seaLevelSunrise()
	}
	return d.morningAt(horizonDegrees + d.elevationAdjustment())
}

func (d *sunDay) sunset() time.Time {
	if d.elevation <= 0 {
		return d.seaLevelSunset()
	}
	return d.eveningAt(horizonDegrees + d.elevationAdjustment())
}

// morningAt returns when the sun rises through deg degrees below the
// horizon.
func (d *sunDay) morningAt(deg float64) time.Time {
	m, _ := sunrise.TimeOfElevation(d.lat, d.lon, -deg, d.year, d.month, d.dom)
	return d.local(m)
}

func (d *sunDay) eveningAt(deg float64) time.Time {
	_, e := sunrise.TimeOfElevation(d.lat, d.lon, -deg, d.year, d.month, d.dom)
	return d.local(e)
}

func (d *sunDay) alos72() time.Time { return offset(d.seaLevelSunrise(), -72*time.Minute) }

func (d *sunDay) tzais72() time.Time { return offset(d.seaLevelSunset(), 72*time.Minute) }

// gra returns sunrise plus the given number of proportional hours, where
// the day runs sunrise to sunset.
func (d *sunDay) gra(hours float64) time.Time {
	return proportional(d.seaLevelSunrise(), d.seaLevelSunset(), hours)
}

// mga is like gra with the day running from 72 minutes before sunrise to
// 72 minutes after sunset.
func (d *sunDay) mga(hours float64) time.Time {
	return proportional(d.alos72(), d.tzais72(), hours)
}

func proportional(start, end time.Time, hours float64) time.Time {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return time.Time{}
	}
	hour := end.Sub(start) / 12
	return start.Add(time.Duration(float64(hour) * hours))
}

func offset(t time.Time, by time.Duration) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(by)
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// depression accepts either degrees below the horizon (e.g. 16.1) or a
// zenith angle (e.g. 106.1).
func depression(deg float64) float64 {
	if deg > 90 {
		return deg - 90
	}
	return deg
}
