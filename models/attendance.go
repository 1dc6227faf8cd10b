package models

import (
	"fmt"
	"time"
)

// ============================================================
// SHIFT & ASSIGNMENT
// ============================================================

// Shift is a named time window ("09:00" - "17:00"). Historical attendance
// references shifts by ID, so everything except Active is immutable once
// an assignment points at it.
type Shift struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required"`
	StartTime string `json:"startTime" validate:"required,len=5"`
	EndTime   string `json:"endTime" validate:"required,len=5"`
	Active    bool   `json:"active"`
}

type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentInactive AssignmentStatus = "inactive"
	AssignmentPending  AssignmentStatus = "pending"
)

// UserShiftAssignment binds a user to a shift for one calendar date.
// One assignment per (userId, date).
type UserShiftAssignment struct {
	ID      string           `json:"id"`
	UserID  string           `json:"userId"`
	ShiftID string           `json:"shiftId"`
	Date    string           `json:"date"` // YYYY-MM-DD
	Status  AssignmentStatus `json:"status"`
}

// EffectiveStatus derives the displayed status: past-dated assignments are
// inactive regardless of what is stored.
func (a *UserShiftAssignment) EffectiveStatus(today string) AssignmentStatus {
	if a.Date < today {
		return AssignmentInactive
	}
	return a.Status
}

// ============================================================
// ATTENDANCE RECORD
// ============================================================

type AttendanceStatus string

const (
	StatusOnTime AttendanceStatus = "on-time"
	StatusLate   AttendanceStatus = "late"
	StatusEarly  AttendanceStatus = "early"
	StatusAbsent AttendanceStatus = "absent"
)

// AttendanceRecord is one check-in/out ledger entry per (userId, date).
// Created on check-in, mutated once on check-out, immutable afterwards.
type AttendanceRecord struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	UserShiftID      string           `json:"userShiftId"`
	Date             string           `json:"date"` // YYYY-MM-DD
	CheckInTime      *time.Time       `json:"checkInTime,omitempty"`
	CheckOutTime     *time.Time       `json:"checkOutTime,omitempty"`
	Status           AttendanceStatus `json:"status"`
	LateMinutes      int              `json:"lateMinutes"`
	EarlyMinutes     int              `json:"earlyMinutes"`
	TotalHours       float64          `json:"totalHours"`
	OvertimeHours    float64          `json:"overtimeHours"`
	CheckInImageRef  string           `json:"checkInImageRef,omitempty"`
	CheckOutImageRef string           `json:"checkOutImageRef,omitempty"`
	IPAddress        string           `json:"ipAddress,omitempty"`
	Location         *GeoPoint        `json:"location,omitempty"`
}

// CheckedOut reports whether the record is a closed ledger entry.
func (r *AttendanceRecord) CheckedOut() bool {
	return r != nil && r.CheckOutTime != nil
}

func (r *AttendanceRecord) String() string {
	if r == nil {
		return "nil"
	}
	return fmt.Sprintf("Attendance{User: %s, Date: %s, Status: %s, Late: %dm, Total: %.2fh}",
		r.UserID, r.Date, r.Status, r.LateMinutes, r.TotalHours)
}

// ============================================================
// GEOLOCATION
// ============================================================

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
