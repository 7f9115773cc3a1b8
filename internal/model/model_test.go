package model

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
	}{
		{"Sunrise / נץ החמה", Label{Primary: "Sunrise", Secondary: "נץ החמה"}},
		{`Sof Zman Shma (MGA) / סוף זמן שמע (מג"א)`, Label{Primary: "Sof Zman Shma (MGA)", Secondary: `סוף זמן שמע (מג"א)`}},
		{"Chatzos/חצות", Label{Primary: "Chatzos", Secondary: "חצות"}},
		{"Custom", Label{Primary: "Custom"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLabel(tt.in))
		})
	}
}

func TestLabelRender(t *testing.T) {
	l := Label{Primary: "Sunset", Secondary: "שקיעת החמה"}
	assert.Equal(t, "Sunset", l.Render(LanguageEnglish))
	assert.Equal(t, "שקיעת החמה", l.Render(LanguageHebrew))
	assert.Equal(t, "Sunset / שקיעת החמה", l.Render(LanguageBoth))

	only := Label{Primary: "Custom"}
	assert.Equal(t, "Custom", only.Render(LanguageHebrew))
}

func TestValidateLatLon(t *testing.T) {
	err := ValidateLatLon(95, 0)
	require.Error(t, err)
	assert.Equal(t, "Latitude must be between -90 and 90", err.Error())
	assert.True(t, IsKind(err, KindValidation))

	err = ValidateLatLon(0, -200)
	require.Error(t, err)
	assert.Equal(t, "Longitude must be between -180 and 180", err.Error())

	err = ValidateLatLon(math.NaN(), 0)
	require.Error(t, err)
	assert.Equal(t, "Coordinates must be numbers", err.Error())

	assert.NoError(t, ValidateLatLon(40.7128, -74.0060))
}

func TestPreferencesValidate(t *testing.T) {
	p := DefaultPreferences()
	require.NoError(t, p.Validate())

	p.AutoRefreshMinutes = 0
	assert.Error(t, p.Validate())
	p.AutoRefreshMinutes = 1441
	assert.Error(t, p.Validate())
	p.AutoRefreshMinutes = 1440
	assert.NoError(t, p.Validate())

	p.LabelLanguage = "yiddish"
	assert.Error(t, p.Validate())
}

func TestVisibilitySet(t *testing.T) {
	v := VisibilitySet{"sunrise": false, "sunset": true}
	assert.False(t, v.Visible("sunrise"))
	assert.True(t, v.Visible("sunset"))
	assert.True(t, v.Visible("chatzos"))

	var empty VisibilitySet
	assert.True(t, empty.Visible("anything"))
}

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", ErrCalculatorUnavailable)
	assert.True(t, errors.Is(wrapped, ErrCalculatorUnavailable))
	assert.Equal(t, KindResolution, KindOf(wrapped))

	assert.True(t, errors.Is(NewValidationError("bad zip"), &Error{Kind: KindValidation}))
	assert.False(t, errors.Is(NewValidationError("bad zip"), &Error{Kind: KindPersistence}))

	dev := &DeviceLocationError{Code: DeviceErrTimeout}
	assert.Equal(t, "Location request timed out", dev.Error())
	assert.True(t, IsKind(dev.AsError(), KindDeviceLocation))
}

func TestPresentZeroIsAbsent(t *testing.T) {
	assert.False(t, Present(DefaultGeoPoint().ResolvedAt).OK)
}
