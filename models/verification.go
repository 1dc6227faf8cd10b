package models

import "fmt"

// ============================================================
// VERIFICATION REQUESTS
// ============================================================

type CheckInRequest struct {
	KioskID  string    `json:"kioskId"`
	Imgs     []string  `json:"imgs"` // base64 JPEG, best frame first
	Location *GeoPoint `json:"location,omitempty"`
}

type CheckOutRequest struct {
	UserID string `json:"userId"`
}

// ============================================================
// RESPONSE STRUCTURES
// ============================================================

type Identity struct {
	EmployeeID string  `json:"employeeId"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Confidence float64 `json:"confidence"`
}

type CheckInResponse struct {
	Token    string            `json:"token"`
	Identity Identity          `json:"identity"`
	Shift    *Shift            `json:"shift,omitempty"`
	Record   *AttendanceRecord `json:"record,omitempty"`
	Verified bool              `json:"verified"`
}

// GetFullName returns the matched employee's full name.
func (r *CheckInResponse) GetFullName() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", r.Identity.FirstName, r.Identity.LastName)
}

// IsSuccessful checks whether the identity match is usable.
func (r *CheckInResponse) IsSuccessful() bool {
	return r != nil && r.Verified && r.Identity.EmployeeID != ""
}

func (r *CheckInResponse) String() string {
	if r == nil {
		return "nil"
	}
	return fmt.Sprintf("CheckIn{Name: %s, Verified: %v, Confidence: %.2f%%}",
		r.GetFullName(), r.Verified, r.Identity.Confidence*100)
}

// ============================================================
// ERROR TAXONOMY
// ============================================================

type ErrorCode string

const (
	ErrNoFaceDetected    ErrorCode = "no-face-detected"
	ErrMultipleFaces     ErrorCode = "multiple-faces"
	ErrLowConfidence     ErrorCode = "low-confidence"
	ErrNoMatch           ErrorCode = "no-match"
	ErrAlreadyCheckedIn  ErrorCode = "already-checked-in"
	ErrAlreadyCheckedOut ErrorCode = "already-checked-out"
	ErrNotCheckedIn      ErrorCode = "not-checked-in"
	ErrNoShiftAssigned   ErrorCode = "no-shift-assigned"
	ErrOutsideOffice     ErrorCode = "outside-office"
	ErrAuthExpired       ErrorCode = "auth-expired"
)

// ErrorClass drives how the capture gate reacts to a failure.
type ErrorClass int

const (
	ClassUserCorrectable ErrorClass = iota // surface message, re-enter Detecting
	ClassFatal                             // session ends, no further sampling
)

// Class maps an error code onto the gate's reaction.
func (c ErrorCode) Class() ErrorClass {
	if c == ErrAuthExpired {
		return ClassFatal
	}
	return ClassUserCorrectable
}

// APIError is the structured failure body of the identity service.
type APIError struct {
	Code    ErrorCode `json:"error"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}
