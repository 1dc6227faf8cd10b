package location

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"attendance-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOffices(t *testing.T, offices ...Office) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offices.json")
	data, err := json.Marshal(OfficeList{Offices: offices})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func office() Office {
	// Midtown Manhattan, 200m radius.
	return Office{
		ID: "NYC", Name: "New York", Latitude: 40.7549, Longitude: -73.9840,
		RadiusMeters: 200, Enabled: true,
	}
}

func TestDistance(t *testing.T) {
	// NYC to LA is roughly 3940km.
	d := Distance(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 3_940_000, d, 50_000)

	assert.Zero(t, Distance(40.7128, -74.0060, 40.7128, -74.0060))
}

func TestRegistry_Load(t *testing.T) {
	path := writeOffices(t, office(), Office{
		ID: "OLD", Name: "Closed Site", Latitude: 1, Longitude: 1,
		RadiusMeters: 50, Enabled: false,
	})

	r := &Registry{Enabled: true, FilePath: path}
	require.NoError(t, r.Load())

	offices := r.Offices()
	require.Len(t, offices, 1) // disabled entries dropped
	assert.Equal(t, "NYC", offices[0].ID)
}

func TestRegistry_LoadCreatesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "offices.json")

	r := &Registry{Enabled: true, FilePath: path}
	require.NoError(t, r.Load())

	_, err := os.Stat(path)
	assert.NoError(t, err)
	assert.NotEmpty(t, r.Offices())
}

func TestRegistry_LoadRejectsInvalidEntry(t *testing.T) {
	path := writeOffices(t, Office{
		ID: "BAD", Name: "Bad", Latitude: 91, Longitude: 0,
		RadiusMeters: 100, Enabled: true,
	})

	r := &Registry{Enabled: true, FilePath: path}
	assert.Error(t, r.Load())
}

func TestRegistry_Validate(t *testing.T) {
	r := &Registry{Enabled: true, FilePath: writeOffices(t, office())}
	require.NoError(t, r.Load())

	// ~111m per 0.001 degree of latitude.
	inside := models.GeoPoint{Latitude: 40.7554, Longitude: -73.9840}
	assert.NoError(t, r.Validate(inside))

	outside := models.GeoPoint{Latitude: 40.7049, Longitude: -73.9840}
	err := r.Validate(outside)
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrOutsideOffice, apiErr.Code)
}

func TestRegistry_ValidateDisabled(t *testing.T) {
	r := &Registry{Enabled: false}
	assert.NoError(t, r.Load())
	assert.NoError(t, r.Validate(models.GeoPoint{Latitude: 89, Longitude: 179}))
}

func TestRegistry_Nearest(t *testing.T) {
	near := office()
	far := Office{ID: "LA", Name: "Los Angeles", Latitude: 34.0522, Longitude: -118.2437,
		RadiusMeters: 200, Enabled: true}

	r := &Registry{Enabled: true, FilePath: writeOffices(t, far, near)}
	require.NoError(t, r.Load())

	match := r.Nearest(models.GeoPoint{Latitude: 40.7550, Longitude: -73.9841})
	require.NotNil(t, match)
	assert.Equal(t, "NYC", match.Office.ID)
	assert.True(t, match.IsValid)
}
