package attendance

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"attendance-kiosk/models"

	"github.com/go-playground/validator/v10"
)

// zeroDate anchors shift-window validation on an arbitrary fixed day.
func zeroDate() time.Time {
	return time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// ============================================================
// ATTENDANCE STORE
// ============================================================

var (
	ErrNotFound            = errors.New("attendance: not found")
	ErrDuplicateAssignment = errors.New("attendance: assignment already exists for user and date")
	ErrDuplicateRecord     = errors.New("attendance: record already exists for user and date")
	ErrRecordClosed        = errors.New("attendance: record already checked out")
)

// Store persists shifts, assignments and attendance records. Uniqueness of
// one assignment and one record per (userId, date) is enforced here, not
// left to callers.
type Store interface {
	PutShift(shift models.Shift) error
	ShiftByID(id string) (models.Shift, error)

	PutAssignment(a models.UserShiftAssignment) error
	AssignmentFor(userID, date string) (models.UserShiftAssignment, error)
	AssignmentsOn(date string) []models.UserShiftAssignment

	CreateRecord(r models.AttendanceRecord) error
	RecordFor(userID, date string) (models.AttendanceRecord, error)
	CloseRecord(r models.AttendanceRecord) error
}

var validate = validator.New()

// ============================================================
// IN-MEMORY IMPLEMENTATION
// ============================================================

// MemoryStore is the reference Store used by the kiosk's contract tests
// and standalone mode. Keys are userID + "|" + date.
type MemoryStore struct {
	mu          sync.RWMutex
	shifts      map[string]models.Shift
	assignments map[string]models.UserShiftAssignment
	records     map[string]models.AttendanceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shifts:      make(map[string]models.Shift),
		assignments: make(map[string]models.UserShiftAssignment),
		records:     make(map[string]models.AttendanceRecord),
	}
}

func key(userID, date string) string {
	return userID + "|" + date
}

func (s *MemoryStore) PutShift(shift models.Shift) error {
	if err := validate.Struct(shift); err != nil {
		return fmt.Errorf("invalid shift: %w", err)
	}
	if _, _, err := ShiftWindow(shift, zeroDate()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts[shift.ID] = shift
	return nil
}

func (s *MemoryStore) ShiftByID(id string) (models.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shifts[id]
	if !ok {
		return models.Shift{}, ErrNotFound
	}
	return shift, nil
}

func (s *MemoryStore) PutAssignment(a models.UserShiftAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(a.UserID, a.Date)
	if _, exists := s.assignments[k]; exists {
		return ErrDuplicateAssignment
	}
	if _, ok := s.shifts[a.ShiftID]; !ok {
		return fmt.Errorf("assignment references unknown shift %s: %w", a.ShiftID, ErrNotFound)
	}
	s.assignments[k] = a
	return nil
}

func (s *MemoryStore) AssignmentFor(userID, date string) (models.UserShiftAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[key(userID, date)]
	if !ok {
		return models.UserShiftAssignment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) AssignmentsOn(date string) []models.UserShiftAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UserShiftAssignment
	for _, a := range s.assignments {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemoryStore) CreateRecord(r models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(r.UserID, r.Date)
	if _, exists := s.records[k]; exists {
		return ErrDuplicateRecord
	}
	s.records[k] = r
	return nil
}

func (s *MemoryStore) RecordFor(userID, date string) (models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key(userID, date)]
	if !ok {
		return models.AttendanceRecord{}, ErrNotFound
	}
	return r, nil
}

// CloseRecord writes the check-out mutation. A record is a ledger entry:
// once closed it never changes again.
func (s *MemoryStore) CloseRecord(r models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(r.UserID, r.Date)
	existing, ok := s.records[k]
	if !ok {
		return ErrNotFound
	}
	if existing.CheckedOut() {
		return ErrRecordClosed
	}
	s.records[k] = r
	return nil
}
