package location

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"attendance-kiosk/models"

	"github.com/go-playground/validator/v10"
)

// ============================================================
// OFFICE REGISTRY
// ============================================================

type Office struct {
	ID           string  `json:"id" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Latitude     float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"gte=-180,lte=180"`
	RadiusMeters float64 `json:"radius_meters" validate:"gt=0"`
	Enabled      bool    `json:"enabled"`
}

type OfficeList struct {
	Offices []Office `json:"offices"`
}

type Match struct {
	Office   Office
	Distance float64
	IsValid  bool
}

type Registry struct {
	Enabled  bool
	FilePath string
	offices  []Office
	mu       sync.RWMutex
}

var validate = validator.New()

// Load reads the offices file, creating a sample registry when missing.
// Disabled entries are dropped; every kept entry is validated.
func (r *Registry) Load() error {
	if !r.Enabled {
		log.Println("📍 Location validation is disabled")
		return nil
	}

	if _, err := os.Stat(r.FilePath); os.IsNotExist(err) {
		log.Printf("⚠️  Offices file not found, creating sample at %s", r.FilePath)

		if err := os.MkdirAll(filepath.Dir(r.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := r.writeSampleFile(); err != nil {
			return fmt.Errorf("failed to create sample offices file: %w", err)
		}
	}

	data, err := os.ReadFile(r.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read offices file: %w", err)
	}

	var officeList OfficeList
	if err := json.Unmarshal(data, &officeList); err != nil {
		return fmt.Errorf("failed to parse offices JSON: %w", err)
	}

	enabled := make([]Office, 0, len(officeList.Offices))
	for _, office := range officeList.Offices {
		if !office.Enabled {
			continue
		}
		if err := validate.Struct(office); err != nil {
			return fmt.Errorf("invalid office %q: %w", office.ID, err)
		}
		enabled = append(enabled, office)
	}

	if len(enabled) == 0 {
		return fmt.Errorf("no enabled offices found in %s", r.FilePath)
	}

	r.mu.Lock()
	r.offices = enabled
	r.mu.Unlock()

	log.Printf("✅ Loaded %d office location(s):", len(enabled))
	for _, office := range enabled {
		log.Printf("   - %s: (%.6f, %.6f) - radius: %.0fm",
			office.Name, office.Latitude, office.Longitude, office.RadiusMeters)
	}

	return nil
}

func (r *Registry) writeSampleFile() error {
	sample := OfficeList{
		Offices: []Office{
			{
				ID:           "HQ",
				Name:         "Headquarters",
				Latitude:     0,
				Longitude:    0,
				RadiusMeters: 100,
				Enabled:      true,
			},
		},
	}

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sample offices: %w", err)
	}
	return os.WriteFile(r.FilePath, data, 0644)
}

func (r *Registry) Offices() []Office {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offices := make([]Office, len(r.offices))
	copy(offices, r.offices)
	return offices
}

// ============================================================
// DISTANCE CALCULATION (Haversine Formula)
// ============================================================

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMeters = 6371000.0

	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLon := toRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// ============================================================
// NEAREST OFFICE
// ============================================================

// Nearest returns the closest registered office and whether the point
// falls inside its radius. Nil when the registry is empty or disabled.
func (r *Registry) Nearest(point models.GeoPoint) *Match {
	offices := r.Offices()
	if len(offices) == 0 {
		return nil
	}

	var best *Match
	for _, office := range offices {
		distance := Distance(office.Latitude, office.Longitude, point.Latitude, point.Longitude)
		if best == nil || distance < best.Distance {
			best = &Match{
				Office:   office,
				Distance: distance,
				IsValid:  distance <= office.RadiusMeters,
			}
		}
	}

	return best
}

// Validate gates a capture location before submission: outside every
// office radius is a user-correctable rejection.
func (r *Registry) Validate(point models.GeoPoint) error {
	if !r.Enabled {
		return nil
	}

	match := r.Nearest(point)
	if match == nil {
		return nil
	}
	if !match.IsValid {
		return &models.APIError{
			Code:    models.ErrOutsideOffice,
			Message: fmt.Sprintf("%.0fm from %s (max %.0fm)", match.Distance, match.Office.Name, match.Office.RadiusMeters),
		}
	}
	return nil
}
