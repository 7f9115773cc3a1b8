// Package zone maps coordinates to an IANA timezone using a short ordered
// list of bounding boxes.
//
// This is an approximation and not a timezone-boundary database. Points
// near a real boundary, or in regions without a rule, get the nearest
// band's zone or the default. Callers that know better (a user choosing a
// zone explicitly) should pass that zone instead of resolving one.
package zone

// DefaultZone is returned when no rule matches.
const DefaultZone = "America/New_York"

// box is an inclusive latitude/longitude rectangle.
type box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b box) contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// band assigns a zone to the longitude range [MinLon, MaxLon), or
// [MinLon, MaxLon] when Closed is set.
type band struct {
	MinLon, MaxLon float64
	Zone           string
	Closed         bool
}

func (b band) contains(lon float64) bool {
	if b.Closed {
		return lon >= b.MinLon && lon <= b.MaxLon
	}
	return lon >= b.MinLon && lon < b.MaxLon
}

// rule is one region. Bands are tried in order; Fallback applies when the
// point is inside box but in no band. An empty Fallback means the region
// does not claim unbanded points and the next rule is tried.
type rule struct {
	Name     string
	Box      box
	Bands    []band
	Fallback string
}

func (r rule) match(lat, lon float64) (string, bool) {
	if !r.Box.contains(lat, lon) {
		return "", false
	}
	for _, b := range r.Bands {
		if b.contains(lon) {
			return b.Zone, true
		}
	}
	if r.Fallback == "" {
		return "", false
	}
	return r.Fallback, true
}

// Order matters: Israel overlaps the broader bands, and Canada must win
// over the US longitude bands north of 49N.
var rules = []rule{
	{
		Name:     "Israel",
		Box:      box{MinLat: 31, MaxLat: 33.5, MinLon: 34, MaxLon: 36},
		Fallback: "Asia/Jerusalem",
	},
	{
		Name: "Canada",
		Box:  box{MinLat: 49, MaxLat: 83, MinLon: -141, MaxLon: -52},
		Bands: []band{
			{MinLon: -141, MaxLon: -120, Zone: "America/Vancouver"},
			{MinLon: -120, MaxLon: -90, Zone: "America/Winnipeg"},
		},
		Fallback: "America/Toronto",
	},
	{
		Name: "United States",
		Box:  box{MinLat: 25, MaxLat: 72, MinLon: -180, MaxLon: -60},
		Bands: []band{
			{MinLon: -180, MaxLon: -135, Zone: "Pacific/Honolulu"},
			{MinLon: -135, MaxLon: -120, Zone: "America/Anchorage"},
			{MinLon: -120, MaxLon: -105, Zone: "America/Los_Angeles"},
			{MinLon: -105, MaxLon: -90, Zone: "America/Denver"},
			{MinLon: -90, MaxLon: -75, Zone: "America/Chicago"},
			{MinLon: -75, MaxLon: -60, Zone: "America/New_York"},
		},
	},
	{
		Name: "Europe",
		Box:  box{MinLat: 35, MaxLat: 71, MinLon: -10, MaxLon: 40},
		Bands: []band{
			{MinLon: -10, MaxLon: 0, Zone: "Europe/London"},
			{MinLon: 0, MaxLon: 15, Zone: "Europe/Paris"},
			{MinLon: 15, MaxLon: 30, Zone: "Europe/Berlin"},
		},
		Fallback: "Europe/Paris",
	},
	{
		Name: "Australia",
		Box:  box{MinLat: -45, MaxLat: -10, MinLon: 110, MaxLon: 155},
		Bands: []band{
			{MinLon: 110, MaxLon: 130, Zone: "Australia/Perth"},
		},
		Fallback: "Australia/Sydney",
	},
	{
		Name: "South America",
		Box:  box{MinLat: -55, MaxLat: 15, MinLon: -85, MaxLon: -30},
		Bands: []band{
			{MinLon: -70, MaxLon: -50, Zone: "America/Argentina/Buenos_Aires", Closed: true},
		},
		Fallback: "America/Sao_Paulo",
	},
	{
		Name:     "South Africa",
		Box:      box{MinLat: -35, MaxLat: -22, MinLon: 16, MaxLon: 33},
		Fallback: "Africa/Johannesburg",
	},
}

// Resolve returns the zone for the first matching rule, or DefaultZone.
// It never fails.
func Resolve(lat, lon float64) string {
	z, _ := ResolveRule(lat, lon)
	return z
}

// ResolveRule is Resolve plus the name of the rule that matched ("" for
// the default).
func ResolveRule(lat, lon float64) (zone, rule string) {
	for _, r := range rules {
		if z, ok := r.match(lat, lon); ok {
			return z, r.Name
		}
	}
	return DefaultZone, ""
}

// Rules lists the rule names in evaluation order.
func Rules() []string {
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.Name)
	}
	return names
}
