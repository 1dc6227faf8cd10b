package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"attendance-kiosk/models"
)

// ============================================================
// ATTENDANCE STATUS ENGINE
// ============================================================

// Grace is the tolerance below which a late arrival or early departure is
// not penalized.
const DefaultGrace = 5 * time.Minute

type CheckInResult struct {
	Status      models.AttendanceStatus
	LateMinutes int
}

type CheckOutResult struct {
	Status        models.AttendanceStatus
	TotalHours    float64
	OvertimeHours float64
	EarlyMinutes  int
}

// EvaluateCheckIn computes status against the assigned shift's start time
// on now's calendar date. Later than start by more than grace is late;
// lateMinutes rounds down and counts from start, not from the grace edge.
func EvaluateCheckIn(now time.Time, shift models.Shift, grace time.Duration) (CheckInResult, error) {
	start, _, err := ShiftWindow(shift, now)
	if err != nil {
		return CheckInResult{}, err
	}

	if now.After(start.Add(grace)) {
		late := int(now.Sub(start).Minutes())
		return CheckInResult{Status: models.StatusLate, LateMinutes: late}, nil
	}

	return CheckInResult{Status: models.StatusOnTime}, nil
}

// EvaluateCheckOut computes totals against the shift's end time on the
// check-in date. Leaving more than grace before end flags the record
// early; past end accrues overtime.
func EvaluateCheckOut(checkIn, checkOut time.Time, shift models.Shift, grace time.Duration) (CheckOutResult, error) {
	if !checkOut.After(checkIn) {
		return CheckOutResult{}, fmt.Errorf("check-out %v is not after check-in %v", checkOut, checkIn)
	}

	_, end, err := ShiftWindow(shift, checkIn)
	if err != nil {
		return CheckOutResult{}, err
	}

	result := CheckOutResult{
		TotalHours: checkOut.Sub(checkIn).Hours(),
	}

	if checkOut.After(end) {
		result.OvertimeHours = checkOut.Sub(end).Hours()
	} else if end.Sub(checkOut) > grace {
		result.Status = models.StatusEarly
		result.EarlyMinutes = int(end.Sub(checkOut).Minutes())
	}

	return result, nil
}

// ============================================================
// SHIFT WINDOW RESOLUTION
// ============================================================

// ShiftWindow anchors the HH:mm window on the given date. An end time at
// or before the start is an overnight shift and rolls to the next day.
func ShiftWindow(shift models.Shift, date time.Time) (start, end time.Time, err error) {
	sh, sm, err := parseHHMM(shift.StartTime)
	if err != nil {
		return start, end, fmt.Errorf("shift %s startTime: %w", shift.ID, err)
	}
	eh, em, err := parseHHMM(shift.EndTime)
	if err != nil {
		return start, end, fmt.Errorf("shift %s endTime: %w", shift.ID, err)
	}

	y, m, d := date.Date()
	loc := date.Location()
	start = time.Date(y, m, d, sh, sm, 0, 0, loc)
	end = time.Date(y, m, d, eh, em, 0, 0, loc)

	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}

	return start, end, nil
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:mm", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// ElapsedHours reports hours worked so far for an open record, for display
// while the employee is still clocked in.
func ElapsedHours(record *models.AttendanceRecord, now time.Time) float64 {
	if record == nil || record.CheckInTime == nil {
		return 0
	}
	if record.CheckOutTime != nil {
		return record.TotalHours
	}
	if !now.After(*record.CheckInTime) {
		return 0
	}
	return now.Sub(*record.CheckInTime).Hours()
}
