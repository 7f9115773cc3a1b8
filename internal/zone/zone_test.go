package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     string
	}{
		{"jerusalem", 31.7683, 35.2137, "Asia/Jerusalem"},
		{"tel aviv", 32.0853, 34.7818, "Asia/Jerusalem"},
		{"new york", 40.7128, -74.0060, "America/New_York"},
		{"chicago", 41.8781, -87.6298, "America/Chicago"},
		{"denver band", 39.7392, -104.9903, "America/Denver"},
		{"los angeles band", 34.0522, -118.2437, "America/Los_Angeles"},
		{"vancouver", 49.2827, -123.1207, "America/Vancouver"},
		{"winnipeg", 49.8951, -97.1384, "America/Winnipeg"},
		{"montreal", 49.5, -73.5673, "America/Toronto"},
		{"london", 51.5074, -0.1278, "Europe/London"},
		{"paris", 48.8566, 2.3522, "Europe/Paris"},
		{"berlin band", 52.52, 15.5, "Europe/Berlin"},
		{"kyiv falls to europe default", 50.45, 30.52, "Europe/Paris"},
		{"perth", -31.9505, 115.8605, "Australia/Perth"},
		{"sydney", -33.8688, 151.2093, "Australia/Sydney"},
		{"buenos aires", -34.6037, -58.3816, "America/Argentina/Buenos_Aires"},
		{"buenos aires band closed at -50", -30, -50, "America/Argentina/Buenos_Aires"},
		{"lima", -12.0464, -77.0428, "America/Sao_Paulo"},
		{"johannesburg", -26.2041, 28.0473, "Africa/Johannesburg"},
		{"tokyo default", 35.6762, 139.6503, DefaultZone},
		{"us box east edge has no band", 40, -60, DefaultZone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.lat, tt.lon))
		})
	}
}

func TestIsraelBoxAlwaysWins(t *testing.T) {
	for lat := 31.0; lat <= 33.5; lat += 0.25 {
		for lon := 34.0; lon <= 36.0; lon += 0.25 {
			z, rule := ResolveRule(lat, lon)
			assert.Equal(t, "Asia/Jerusalem", z, "lat=%v lon=%v", lat, lon)
			assert.Equal(t, "Israel", rule)
		}
	}
}

func TestRulesOrder(t *testing.T) {
	names := Rules()
	assert.Equal(t, "Israel", names[0])
	assert.Less(t, indexOf(names, "Canada"), indexOf(names, "United States"))
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
