package attendance

import (
	"errors"
	"fmt"
	"log"
	"time"

	"attendance-kiosk/models"

	"github.com/google/uuid"
)

// ============================================================
// ATTENDANCE SERVICE
// ============================================================

// Service applies the status engine on top of a Store. It is the
// idempotence authority the submitter contract leans on: no shift means no
// record, and a second check-in or check-out on the same date is rejected,
// never silently duplicated.
type Service struct {
	store Store
	grace time.Duration
	now   func() time.Time
}

func NewService(store Store, grace time.Duration) *Service {
	return &Service{
		store: store,
		grace: grace,
		now:   time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

const dateLayout = "2006-01-02"

// CheckIn creates the day's attendance record for the user. Fails fatally
// with no-shift-assigned or already-checked-in; both are user-correctable
// states, not transient errors.
func (s *Service) CheckIn(userID, imageRef, ip string, loc *models.GeoPoint) (*models.AttendanceRecord, error) {
	now := s.now()
	date := now.Format(dateLayout)

	assignment, err := s.store.AssignmentFor(userID, date)
	if errors.Is(err, ErrNotFound) {
		return nil, &models.APIError{Code: models.ErrNoShiftAssigned, Message: "no shift today"}
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.store.RecordFor(userID, date); err == nil {
		return nil, &models.APIError{Code: models.ErrAlreadyCheckedIn, Message: "already checked in today"}
	}

	shift, err := s.store.ShiftByID(assignment.ShiftID)
	if err != nil {
		return nil, fmt.Errorf("resolve shift %s: %w", assignment.ShiftID, err)
	}

	eval, err := EvaluateCheckIn(now, shift, s.grace)
	if err != nil {
		return nil, err
	}

	checkIn := now
	record := models.AttendanceRecord{
		ID:              uuid.NewString(),
		UserID:          userID,
		UserShiftID:     assignment.ID,
		Date:            date,
		CheckInTime:     &checkIn,
		Status:          eval.Status,
		LateMinutes:     eval.LateMinutes,
		CheckInImageRef: imageRef,
		IPAddress:       ip,
		Location:        loc,
	}

	if err := s.store.CreateRecord(record); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return nil, &models.APIError{Code: models.ErrAlreadyCheckedIn, Message: "already checked in today"}
		}
		return nil, err
	}

	log.Printf("🕘 Check-in %s: %s (late: %dm)", userID, record.Status, record.LateMinutes)
	return &record, nil
}

// CheckOut closes the day's record with totals and the early flag.
func (s *Service) CheckOut(userID, imageRef string) (*models.AttendanceRecord, error) {
	now := s.now()
	date := now.Format(dateLayout)

	record, err := s.store.RecordFor(userID, date)
	if errors.Is(err, ErrNotFound) {
		return nil, &models.APIError{Code: models.ErrNotCheckedIn, Message: "not checked in today"}
	}
	if err != nil {
		return nil, err
	}
	if record.CheckedOut() {
		return nil, &models.APIError{Code: models.ErrAlreadyCheckedOut, Message: "already checked out today"}
	}
	if record.CheckInTime == nil {
		// Absent sweep entry; nothing to close.
		return nil, &models.APIError{Code: models.ErrNotCheckedIn, Message: "not checked in today"}
	}

	assignment, err := s.store.AssignmentFor(userID, date)
	if err != nil {
		return nil, fmt.Errorf("resolve assignment: %w", err)
	}
	shift, err := s.store.ShiftByID(assignment.ShiftID)
	if err != nil {
		return nil, fmt.Errorf("resolve shift %s: %w", assignment.ShiftID, err)
	}

	eval, err := EvaluateCheckOut(*record.CheckInTime, now, shift, s.grace)
	if err != nil {
		return nil, err
	}

	checkOut := now
	record.CheckOutTime = &checkOut
	record.TotalHours = eval.TotalHours
	record.OvertimeHours = eval.OvertimeHours
	record.EarlyMinutes = eval.EarlyMinutes
	record.CheckOutImageRef = imageRef
	if eval.Status == models.StatusEarly {
		record.Status = models.StatusEarly
	}

	if err := s.store.CloseRecord(record); err != nil {
		if errors.Is(err, ErrRecordClosed) {
			return nil, &models.APIError{Code: models.ErrAlreadyCheckedOut, Message: "already checked out today"}
		}
		return nil, err
	}

	log.Printf("🕔 Check-out %s: %.2fh (overtime: %.2fh)", userID, record.TotalHours, record.OvertimeHours)
	return &record, nil
}
