package attendance

import (
	"testing"
	"time"

	"attendance-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dayShift() models.Shift {
	return models.Shift{ID: "day", Name: "Day", StartTime: "09:00", EndTime: "17:00", Active: true}
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestEvaluateCheckIn(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		wantStat models.AttendanceStatus
		wantLate int
	}{
		{"well before start", at(8, 30), models.StatusOnTime, 0},
		{"exactly at start", at(9, 0), models.StatusOnTime, 0},
		{"inside grace", at(9, 4), models.StatusOnTime, 0},
		{"at grace edge", at(9, 5), models.StatusOnTime, 0},
		{"just past grace", at(9, 6), models.StatusLate, 6},
		{"sixteen minutes late", at(9, 16), models.StatusLate, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCheckIn(tt.now, dayShift(), DefaultGrace)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStat, got.Status)
			assert.Equal(t, tt.wantLate, got.LateMinutes)
		})
	}
}

func TestEvaluateCheckIn_LateCountsFromStartNotGraceEdge(t *testing.T) {
	got, err := EvaluateCheckIn(at(9, 10), dayShift(), DefaultGrace)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLate, got.Status)
	assert.Equal(t, 10, got.LateMinutes) // not 5
}

func TestEvaluateCheckOut(t *testing.T) {
	checkIn := at(9, 0)

	tests := []struct {
		name         string
		out          time.Time
		wantStat     models.AttendanceStatus
		wantTotal    float64
		wantOvertime float64
		wantEarly    int
	}{
		{"exactly at end", at(17, 0), "", 8, 0, 0},
		{"ninety minutes over", at(18, 30), "", 9.5, 1.5, 0},
		{"within grace of end", at(16, 57), "", 7.95, 0, 0},
		{"half hour early", at(16, 30), models.StatusEarly, 7.5, 0, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCheckOut(checkIn, tt.out, dayShift(), DefaultGrace)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStat, got.Status)
			assert.InDelta(t, tt.wantTotal, got.TotalHours, 1e-9)
			assert.InDelta(t, tt.wantOvertime, got.OvertimeHours, 1e-9)
			assert.Equal(t, tt.wantEarly, got.EarlyMinutes)
		})
	}
}

func TestEvaluateCheckOut_RejectsNonPositiveSpan(t *testing.T) {
	_, err := EvaluateCheckOut(at(9, 0), at(9, 0), dayShift(), DefaultGrace)
	assert.Error(t, err)

	_, err = EvaluateCheckOut(at(9, 0), at(8, 0), dayShift(), DefaultGrace)
	assert.Error(t, err)
}

func TestShiftWindow_Overnight(t *testing.T) {
	night := models.Shift{ID: "night", Name: "Night", StartTime: "22:00", EndTime: "06:00", Active: true}

	start, end, err := ShiftWindow(night, at(12, 0))
	require.NoError(t, err)

	assert.Equal(t, at(22, 0), start)
	assert.Equal(t, start.Add(8*time.Hour), end)
	assert.Equal(t, 3, end.Day()) // rolled to the next day
}

func TestShiftWindow_InvalidTimes(t *testing.T) {
	bad := []models.Shift{
		{ID: "a", StartTime: "9am", EndTime: "17:00"},
		{ID: "b", StartTime: "25:00", EndTime: "17:00"},
		{ID: "c", StartTime: "09:00", EndTime: "09:61"},
	}

	for _, shift := range bad {
		_, _, err := ShiftWindow(shift, at(12, 0))
		assert.Error(t, err, "shift %s", shift.ID)
	}
}

func TestElapsedHours(t *testing.T) {
	in := at(9, 0)

	open := &models.AttendanceRecord{CheckInTime: &in}
	assert.InDelta(t, 3.5, ElapsedHours(open, at(12, 30)), 1e-9)
	assert.Zero(t, ElapsedHours(open, at(8, 0))) // clock skew guard

	out := at(17, 0)
	closed := &models.AttendanceRecord{CheckInTime: &in, CheckOutTime: &out, TotalHours: 8}
	assert.InDelta(t, 8.0, ElapsedHours(closed, at(23, 0)), 1e-9)

	assert.Zero(t, ElapsedHours(nil, at(12, 0)))
	assert.Zero(t, ElapsedHours(&models.AttendanceRecord{}, at(12, 0)))
}
