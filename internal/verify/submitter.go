package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"attendance-kiosk/internal/api"
	"attendance-kiosk/internal/detector"
	"attendance-kiosk/internal/frames"
	"attendance-kiosk/models"
)

// DefaultExpandRatio grows the detected face box on each side before the
// submission crop, keeping some context around the face.
const DefaultExpandRatio = 0.2

// ============================================================
// VERIFICATION SUBMITTER
// ============================================================

// ErrTransient marks failures the capture gate should absorb silently
// (network trouble, timeouts). User-correctable and fatal outcomes come
// back as *models.APIError instead.
var ErrTransient = errors.New("verify: transient failure")

// Submitter packages a captured frame and sends it to the identity
// service. One network call per invocation, no internal retries.
type Submitter struct {
	apiClient        *api.APIClient
	kioskID          string
	jpegQuality      int
	expandRatio      float64
	checkInEndpoint  string
	checkOutEndpoint string
	locate           func() *models.GeoPoint
	geofence         func(models.GeoPoint) error
}

// NewSubmitter builds a submitter against the configured endpoints.
// locate may be nil when geolocation is disabled.
func NewSubmitter(apiClient *api.APIClient, kioskID string, jpegQuality int, locate func() *models.GeoPoint) *Submitter {
	return &Submitter{
		apiClient:        apiClient,
		kioskID:          kioskID,
		jpegQuality:      jpegQuality,
		expandRatio:      DefaultExpandRatio,
		checkInEndpoint:  models.APICheckIn,
		checkOutEndpoint: models.APICheckOut,
		locate:           locate,
	}
}

// WithEndpoints overrides the service endpoints (tests, staging).
func (s *Submitter) WithEndpoints(checkIn, checkOut string) *Submitter {
	s.checkInEndpoint = checkIn
	s.checkOutEndpoint = checkOut
	return s
}

// WithGeofence installs a location check that runs before any network
// call. A located point failing the check rejects the submission.
func (s *Submitter) WithGeofence(validate func(models.GeoPoint) error) *Submitter {
	s.geofence = validate
	return s
}

// CheckIn submits one frame for identity verification. The frame is
// cropped to the largest detected face (expanded and squared) before
// encoding; without detections the full frame goes out. The server is the
// idempotence authority: a second successful check-in on the same day
// comes back as already-checked-in, never as a silent duplicate.
func (s *Submitter) CheckIn(ctx context.Context, frame frames.Frame, detections []detector.Detection) (*models.CheckInResponse, error) {
	img, err := s.encodeForSubmission(frame, detections)
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrTransient, err)
	}

	reqBody := models.CheckInRequest{
		KioskID: s.kioskID,
		Imgs:    []string{img},
	}
	if s.locate != nil {
		reqBody.Location = s.locate()
	}
	if reqBody.Location != nil && s.geofence != nil {
		if err := s.geofence(*reqBody.Location); err != nil {
			log.Printf("📍 Check-in rejected by geofence: %v", err)
			return nil, err
		}
	}

	body, statusCode, err := s.apiClient.SendRequest(ctx, reqBody, s.checkInEndpoint)
	if err != nil {
		// Timeouts and network failures alike: silent retry territory.
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	s.apiClient.LogResponse(body, statusCode)

	if !s.apiClient.IsSuccessStatusCode(statusCode) {
		return nil, s.decodeError(body, statusCode)
	}

	var result models.CheckInResponse
	if err := s.apiClient.ParseResponse(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if !result.IsSuccessful() {
		return nil, &models.APIError{Code: models.ErrNoMatch, Message: "identity not verified"}
	}

	log.Printf("👤 Employee: %s", result.GetFullName())
	log.Printf("🎯 Confidence: %.2f%%", result.Identity.Confidence*100)

	return &result, nil
}

// encodeForSubmission crops the frame to the expanded square around the
// largest face and encodes it. Falls back to the full frame when there is
// no detection or the frame cannot crop.
func (s *Submitter) encodeForSubmission(frame frames.Frame, detections []detector.Detection) (string, error) {
	face, ok := detector.Largest(detections)
	cropper, canCrop := frame.(frames.Cropper)
	if !ok || !canCrop {
		return frames.EncodeBase64JPEG(frame, s.jpegQuality)
	}

	bounds := frame.Bounds()
	region := detector.ExpandAndCenter(face.Box, bounds.Dx(), bounds.Dy(), s.expandRatio)
	cropped, err := cropper.Crop(region)
	if err != nil {
		return frames.EncodeBase64JPEG(frame, s.jpegQuality)
	}
	defer cropped.Close()

	return frames.EncodeBase64JPEG(cropped, s.jpegQuality)
}

// CheckOut closes the day's attendance record. No image in this flow.
func (s *Submitter) CheckOut(ctx context.Context, userID string) (*models.AttendanceRecord, error) {
	reqBody := models.CheckOutRequest{UserID: userID}

	body, statusCode, err := s.apiClient.SendRequest(ctx, reqBody, s.checkOutEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	s.apiClient.LogResponse(body, statusCode)

	if !s.apiClient.IsSuccessStatusCode(statusCode) {
		return nil, s.decodeError(body, statusCode)
	}

	var record models.AttendanceRecord
	if err := s.apiClient.ParseResponse(body, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	return &record, nil
}

// decodeError turns a structured failure body into a typed error from the
// fixed taxonomy. Anything unreadable degrades to a transient failure so
// the gate keeps trying rather than showing a bogus dialog.
func (s *Submitter) decodeError(body []byte, statusCode int) error {
	var apiErr models.APIError
	if err := s.apiClient.ParseResponse(body, &apiErr); err == nil && apiErr.Code != "" {
		return &apiErr
	}

	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return &models.APIError{Code: models.ErrAuthExpired, Message: "authentication expired"}
	}

	return fmt.Errorf("%w: status %d", ErrTransient, statusCode)
}

// IsTransient reports whether an error should be retried silently.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
