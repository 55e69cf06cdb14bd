package models

import (
	"math"
	"strings"
	"testing"

	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIncident() *Incident {
	return &Incident{
		Title:    "Fire at Market",
		Location: NewGeoPoint(19.24, 73.13, ""),
	}
}

func TestNewGeoPoint_KeepsLongitudeFirst(t *testing.T) {
	p := NewGeoPoint(19.24, 73.13, "Kalyan")

	assert.Equal(t, [2]float64{73.13, 19.24}, p.Coordinates)
	assert.Equal(t, 19.24, p.Lat())
	assert.Equal(t, 73.13, p.Lng())
	assert.Equal(t, "Point", p.Type)
}

func TestApplyDefaults(t *testing.T) {
	inc := validIncident()
	inc.Title = "  Fire at Market  "
	inc.ApplyDefaults()

	assert.Equal(t, "Fire at Market", inc.Title)
	assert.Equal(t, CategoryOther, inc.Category)
	assert.Equal(t, SeverityMedium, inc.Severity)
	assert.Equal(t, StatusPending, inc.Status)
	assert.Equal(t, "Anonymous", inc.Reporter.Name)
	assert.False(t, inc.Verified)
}

func TestValidate_Success(t *testing.T) {
	inc := validIncident()
	inc.ApplyDefaults()

	require.NoError(t, inc.Validate())
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Incident)
		field  string
	}{
		{"missing title", func(i *Incident) { i.Title = "" }, "title"},
		{"short title", func(i *Incident) { i.Title = "Fire" }, "title"},
		{"long title", func(i *Incident) { i.Title = strings.Repeat("a", 201) }, "title"},
		{"long description", func(i *Incident) { i.Description = strings.Repeat("d", 1001) }, "description"},
		{"bad category", func(i *Incident) { i.Category = "Volcano" }, "category"},
		{"bad severity", func(i *Incident) { i.Severity = "Extreme" }, "severity"},
		{"bad status", func(i *Incident) { i.Status = "open" }, "status"},
		{"latitude out of range", func(i *Incident) { i.Location = NewGeoPoint(95, 10, "") }, "lat"},
		{"longitude out of range", func(i *Incident) { i.Location = NewGeoPoint(10, 181, "") }, "lng"},
		{"latitude NaN", func(i *Incident) { i.Location = NewGeoPoint(math.NaN(), 10, "") }, "lat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := validIncident()
			inc.ApplyDefaults()
			tt.mutate(inc)

			err := inc.Validate()
			require.Error(t, err)
			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.CodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestValidate_ReporterContactIsFreeText(t *testing.T) {
	inc := validIncident()
	inc.Reporter = Reporter{Name: "Asha", Phone: "ask at the gate", Email: "call me"}
	inc.ApplyDefaults()

	assert.NoError(t, inc.Validate())
}

func TestValidate_TitleLengthCountsRunes(t *testing.T) {
	inc := validIncident()
	inc.Title = "Пожар"
	inc.ApplyDefaults()

	assert.NoError(t, inc.Validate())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("in-progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("done")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"pending", "in-progress", "resolved", "closed"}, appErr.Allowed)
}

func TestStatus_Active(t *testing.T) {
	assert.True(t, StatusPending.Active())
	assert.True(t, StatusInProgress.Active())
	assert.False(t, StatusResolved.Active())
	assert.False(t, StatusClosed.Active())
}

func TestCoordinateLabel(t *testing.T) {
	assert.Equal(t, "19.24, 73.13", CoordinateLabel(19.24, 73.13))
}
