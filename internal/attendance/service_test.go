package attendance

import (
	"testing"
	"time"

	"attendance-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture: one user assigned to the 09:00-17:00 shift on 2026-03-02,
// with the service clock frozen.
func newTestService(t *testing.T, clock time.Time) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()

	require.NoError(t, store.PutShift(dayShift()))
	require.NoError(t, store.PutAssignment(models.UserShiftAssignment{
		ID:      "asg-1",
		UserID:  "user-1",
		ShiftID: "day",
		Date:    "2026-03-02",
		Status:  models.AssignmentActive,
	}))

	svc := NewService(store, DefaultGrace).WithClock(func() time.Time { return clock })
	return svc, store
}

func TestServiceCheckIn_OnTime(t *testing.T) {
	svc, _ := newTestService(t, at(8, 55))

	record, err := svc.CheckIn("user-1", "img-1", "10.0.0.5", nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusOnTime, record.Status)
	assert.Zero(t, record.LateMinutes)
	assert.Equal(t, "2026-03-02", record.Date)
	assert.Equal(t, "asg-1", record.UserShiftID)
	require.NotNil(t, record.CheckInTime)
	assert.False(t, record.CheckedOut())
}

func TestServiceCheckIn_Late(t *testing.T) {
	svc, _ := newTestService(t, at(9, 16))

	record, err := svc.CheckIn("user-1", "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusLate, record.Status)
	assert.Equal(t, 16, record.LateMinutes)
}

func TestServiceCheckIn_NoAssignment(t *testing.T) {
	svc, _ := newTestService(t, at(9, 0))

	_, err := svc.CheckIn("stranger", "", "", nil)
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrNoShiftAssigned, apiErr.Code)
}

func TestServiceCheckIn_SecondAttemptRejected(t *testing.T) {
	svc, _ := newTestService(t, at(9, 0))

	_, err := svc.CheckIn("user-1", "", "", nil)
	require.NoError(t, err)

	_, err = svc.CheckIn("user-1", "", "", nil)
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrAlreadyCheckedIn, apiErr.Code)
}

func TestServiceCheckOut_Totals(t *testing.T) {
	svc, _ := newTestService(t, at(9, 0))

	_, err := svc.CheckIn("user-1", "", "", nil)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return at(18, 30) })
	record, err := svc.CheckOut("user-1", "img-out")
	require.NoError(t, err)

	assert.True(t, record.CheckedOut())
	assert.InDelta(t, 9.5, record.TotalHours, 1e-9)
	assert.InDelta(t, 1.5, record.OvertimeHours, 1e-9)
	assert.Equal(t, models.StatusOnTime, record.Status) // check-in status survives
}

func TestServiceCheckOut_EarlyOverwritesStatus(t *testing.T) {
	svc, _ := newTestService(t, at(9, 0))

	_, err := svc.CheckIn("user-1", "", "", nil)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return at(16, 0) })
	record, err := svc.CheckOut("user-1", "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusEarly, record.Status)
	assert.Equal(t, 60, record.EarlyMinutes)
}

func TestServiceCheckOut_WithoutCheckIn(t *testing.T) {
	svc, _ := newTestService(t, at(17, 0))

	_, err := svc.CheckOut("user-1", "")
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrNotCheckedIn, apiErr.Code)
}

func TestServiceCheckOut_TwiceRejected(t *testing.T) {
	svc, _ := newTestService(t, at(9, 0))

	_, err := svc.CheckIn("user-1", "", "", nil)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return at(17, 0) })
	_, err = svc.CheckOut("user-1", "")
	require.NoError(t, err)

	_, err = svc.CheckOut("user-1", "")
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrAlreadyCheckedOut, apiErr.Code)
}

func TestServiceCheckOut_AbsentEntryNotClosable(t *testing.T) {
	svc, store := newTestService(t, at(17, 0))

	require.NoError(t, store.CreateRecord(models.AttendanceRecord{
		ID:          "rec-absent",
		UserID:      "user-1",
		UserShiftID: "asg-1",
		Date:        "2026-03-02",
		Status:      models.StatusAbsent,
	}))

	_, err := svc.CheckOut("user-1", "")
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, models.ErrNotCheckedIn, apiErr.Code)
}

func TestSweepAbsences(t *testing.T) {
	svc, store := newTestService(t, at(9, 0))

	require.NoError(t, store.PutAssignment(models.UserShiftAssignment{
		ID: "asg-2", UserID: "user-2", ShiftID: "day", Date: "2026-03-02",
		Status: models.AssignmentActive,
	}))

	// user-1 checks in; user-2 never shows up.
	_, err := svc.CheckIn("user-1", "", "", nil)
	require.NoError(t, err)

	marked, err := svc.SweepAbsences("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	record, err := store.RecordFor("user-2", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbsent, record.Status)
	assert.Nil(t, record.CheckInTime)

	// Second sweep is a no-op.
	marked, err = svc.SweepAbsences("2026-03-02")
	require.NoError(t, err)
	assert.Zero(t, marked)
}

// ============================================================
// STORE INVARIANTS
// ============================================================

func TestMemoryStore_OneAssignmentPerUserDate(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutShift(dayShift()))

	a := models.UserShiftAssignment{ID: "a1", UserID: "u", ShiftID: "day", Date: "2026-03-02"}
	require.NoError(t, store.PutAssignment(a))

	a.ID = "a2"
	assert.ErrorIs(t, store.PutAssignment(a), ErrDuplicateAssignment)
}

func TestMemoryStore_AssignmentNeedsKnownShift(t *testing.T) {
	store := NewMemoryStore()
	err := store.PutAssignment(models.UserShiftAssignment{
		ID: "a1", UserID: "u", ShiftID: "ghost", Date: "2026-03-02",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ClosedRecordIsImmutable(t *testing.T) {
	store := NewMemoryStore()

	in, out := at(9, 0), at(17, 0)
	record := models.AttendanceRecord{ID: "r1", UserID: "u", Date: "2026-03-02", CheckInTime: &in}
	require.NoError(t, store.CreateRecord(record))

	record.CheckOutTime = &out
	require.NoError(t, store.CloseRecord(record))

	assert.ErrorIs(t, store.CloseRecord(record), ErrRecordClosed)
}

func TestMemoryStore_PutShiftValidates(t *testing.T) {
	store := NewMemoryStore()

	assert.Error(t, store.PutShift(models.Shift{ID: "x", Name: "X", StartTime: "nine", EndTime: "17:00"}))
	assert.Error(t, store.PutShift(models.Shift{ID: "x", StartTime: "09:00", EndTime: "17:00"})) // missing name
}

func TestAssignmentEffectiveStatus(t *testing.T) {
	a := models.UserShiftAssignment{Date: "2026-03-01", Status: models.AssignmentActive}
	assert.Equal(t, models.AssignmentInactive, a.EffectiveStatus("2026-03-02"))

	a.Date = "2026-03-02"
	assert.Equal(t, models.AssignmentActive, a.EffectiveStatus("2026-03-02"))
}
