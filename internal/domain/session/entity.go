package session

import (
	"time"
)

// Status is the attendance status assigned at clock-in.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
)

// TerminatedBy records who closed a session.
type TerminatedBy string

const (
	TerminatedBySelf   TerminatedBy = "SELF"
	TerminatedByAdmin  TerminatedBy = "ADMIN"
	TerminatedByExpiry TerminatedBy = "EXPIRY"
)

// TimeValidationMethod tells how the clock-in instant was verified.
type TimeValidationMethod string

const (
	MethodServerTime          TimeValidationMethod = "SERVER_TIME"
	MethodReasonablenessCheck TimeValidationMethod = "REASONABLENESS_CHECK"
)

// DateLayout is the layout of Session.Date.
const DateLayout = "2006-01-02"

// ClockLayout is the layout of the local wall-clock fields.
const ClockLayout = "15:04:05"

// DeviceSnapshot is the device and risk state captured when the session was created.
type DeviceSnapshot struct {
	Model         string
	Manufacturer  string
	OSVersion     string
	IsRooted      bool
	IsEmulator    bool
	DeveloperMode bool
	USBDebugging  bool
	RiskLevel     string
	RiskScore     int
	RiskReasons   []string
}

// TimeSnapshot is the time-integrity result captured when the session was created.
type TimeSnapshot struct {
	Method     TimeValidationMethod
	SkewMillis int64
	Verified   bool
}

// Session is one attendance session of an employee on a calendar date from a
// single device. At most one session per (EmployeeID, Date) is active.
type Session struct {
	ID           string
	EmployeeID   string
	PFNumber     string
	EmployeeName string
	Date         string
	DeviceID     string

	ClockInTime       string
	ClockInTimestamp  time.Time
	ClockOutTime      *string
	ClockOutTimestamp *time.Time
	SessionStartTime  time.Time
	SessionEndTime    *time.Time
	LastHeartbeat     time.Time
	HeartbeatCount    int

	ClockInLatitude    float64
	ClockInLongitude   float64
	ClockOutLatitude   *float64
	ClockOutLongitude  *float64
	OfficeID           string
	OfficeName         string
	ClockOutOfficeID   *string
	ClockOutOfficeName *string

	SessionActive       bool
	Status              Status
	IsLate              bool
	LateMinutes         int
	IsEarlyClockOut     bool
	EarlyClockOutReason *string
	SessionExpired      bool
	SessionExpiredTime  *time.Time
	TerminatedBy        *TerminatedBy
	TerminationReason   *string
	TerminatedByAdminID *string

	HasDeviceConflict bool
	ConflictDeviceID  *string
	ConflictTime      *time.Time
	SecurityAlertID   *string

	Device        DeviceSnapshot
	TimeIntegrity TimeSnapshot

	TotalHours float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeviceConflict is the audit record of a rejected attempt from a second device.
type DeviceConflict struct {
	ID                   string
	EmployeeID           string
	Date                 string
	OriginalSessionID    string
	OriginalDeviceID     string
	OriginalDeviceInfo   string
	AttemptingDeviceID   string
	AttemptingDeviceInfo string
	DetectedAt           time.Time
	Resolved             bool
}

// DeviceInfo renders a short display label for the snapshot.
func (d DeviceSnapshot) DeviceInfo() string {
	switch {
	case d.Manufacturer == "" && d.Model == "":
		return "unknown device"
	case d.Manufacturer == "":
		return d.Model
	case d.Model == "":
		return d.Manufacturer
	}
	return d.Manufacturer + " " + d.Model
}

// ClockOutUpdate lists the fields a regular clock-out may change.
type ClockOutUpdate struct {
	ClockOutTime        string
	ClockOutTimestamp   time.Time
	ClockOutLatitude    float64
	ClockOutLongitude   float64
	ClockOutOfficeID    string
	ClockOutOfficeName  string
	TotalHours          float64
	IsEarlyClockOut     bool
	EarlyClockOutReason *string
}

// ForceCloseUpdate lists the fields an administrative termination may change.
type ForceCloseUpdate struct {
	Reason  string
	AdminID string
	At      time.Time
}

// ConflictAnnotation lists the fields a conflict report may change on the original session.
type ConflictAnnotation struct {
	ConflictDeviceID string
	ConflictTime     time.Time
	SecurityAlertID  string
}
