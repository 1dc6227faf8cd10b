package attendance

import (
	"errors"
	"log"

	"attendance-kiosk/models"

	"github.com/google/uuid"
)

// ============================================================
// ABSENT SWEEP
// ============================================================

// SweepAbsences marks every assigned-but-never-checked-in user on the
// given date absent. Runs out of band (end of day), never synchronously
// with check-in traffic.
func (s *Service) SweepAbsences(date string) (int, error) {
	marked := 0

	for _, assignment := range s.store.AssignmentsOn(date) {
		if _, err := s.store.RecordFor(assignment.UserID, date); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return marked, err
		}

		record := models.AttendanceRecord{
			ID:          uuid.NewString(),
			UserID:      assignment.UserID,
			UserShiftID: assignment.ID,
			Date:        date,
			Status:      models.StatusAbsent,
		}

		if err := s.store.CreateRecord(record); err != nil {
			if errors.Is(err, ErrDuplicateRecord) {
				continue // checked in between list and create
			}
			return marked, err
		}
		marked++
	}

	if marked > 0 {
		log.Printf("🧾 Absent sweep for %s: %d record(s)", date, marked)
	}
	return marked, nil
}
