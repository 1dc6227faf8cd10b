package models

import "os"

// ============================================================
// SIGNALING CONSTANTS
// ============================================================

const (
	SignalSDPInit      = 0
	SignalSDPOffer     = 1
	SignalSDPAnswer    = 2
	SignalICECandidate = 3
	SignalSDPQuit      = 4
	SignalSDPTimeout   = 5
)

// ============================================================
// API CONSTANTS - resolved from environment at startup
// ============================================================

var (
	// BaseURL points at the attendance/identity service.
	BaseURL = getBaseURL()

	// API endpoints
	APICheckIn  = BaseURL + "/attendance/check-in"
	APICheckOut = BaseURL + "/attendance/check-out"
)

// getBaseURL reads BASE_URL from the environment with a local fallback.
func getBaseURL() string {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		return "http://localhost:8080"
	}
	return baseURL
}
