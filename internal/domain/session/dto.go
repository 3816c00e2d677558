package session

import (
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
)

// ========================================
// SESSION DTOs
// ========================================

type ValidateSessionResponse struct {
	Outcome       Outcome          `json:"outcome"`
	SessionID     string           `json:"session_id,omitempty"`
	ActiveSession *SessionResponse `json:"active_session,omitempty"`
}

type ForceTerminateBody struct {
	Reason string `json:"reason"`
}

func (r *ForceTerminateBody) Validate() error {
	if validator.IsEmpty(r.Reason) {
		return validator.ValidationErrors{{Field: "reason", Message: "reason is required"}}
	}
	return nil
}

// HeartbeatBody names the device sending the heartbeat. Only the device
// holding the session may keep it alive.
type HeartbeatBody struct {
	DeviceID string `json:"device_id"`
}

func (r *HeartbeatBody) Validate() error {
	if validator.IsEmpty(r.DeviceID) {
		return validator.ValidationErrors{{Field: "device_id", Message: "device_id is required"}}
	}
	return nil
}

type CleanupResponse struct {
	Expired int    `json:"expired"`
	Timeout string `json:"timeout"`
}

type SessionResponse struct {
	ID                  string   `json:"id"`
	EmployeeID          string   `json:"employee_id"`
	PFNumber            string   `json:"pf_number,omitempty"`
	EmployeeName        string   `json:"employee_name,omitempty"`
	Date                string   `json:"date"`
	DeviceID            string   `json:"device_id"`
	DeviceInfo          string   `json:"device_info"`
	ClockInTime         string   `json:"clock_in_time"`
	ClockInTimestamp    string   `json:"clock_in_timestamp"`
	ClockOutTime        *string  `json:"clock_out_time,omitempty"`
	ClockOutTimestamp   *string  `json:"clock_out_timestamp,omitempty"`
	LastHeartbeat       string   `json:"last_heartbeat"`
	HeartbeatCount      int      `json:"heartbeat_count"`
	ClockInLatitude     float64  `json:"clock_in_latitude"`
	ClockInLongitude    float64  `json:"clock_in_longitude"`
	ClockOutLatitude    *float64 `json:"clock_out_latitude,omitempty"`
	ClockOutLongitude   *float64 `json:"clock_out_longitude,omitempty"`
	OfficeID            string   `json:"office_id"`
	OfficeName          string   `json:"office_name"`
	ClockOutOfficeID    *string  `json:"clock_out_office_id,omitempty"`
	ClockOutOfficeName  *string  `json:"clock_out_office_name,omitempty"`
	SessionActive       bool     `json:"session_active"`
	Status              Status   `json:"status"`
	IsLate              bool     `json:"is_late"`
	LateMinutes         int      `json:"late_minutes"`
	IsEarlyClockOut     bool     `json:"is_early_clock_out"`
	EarlyClockOutReason *string  `json:"early_clock_out_reason,omitempty"`
	SessionExpired      bool     `json:"session_expired"`
	SessionTerminatedBy *string  `json:"session_terminated_by,omitempty"`
	HasDeviceConflict   bool     `json:"has_device_conflict"`
	RiskLevel           string   `json:"risk_level"`
	RiskScore           int      `json:"risk_score"`
	TimeValidation      string   `json:"time_validation_method"`
	ClockSkewMillis     int64    `json:"clock_skew_millis"`
	IsTimeValid         bool     `json:"is_time_valid"`
	TotalHours          float64  `json:"total_hours"`
}

type ConflictResponse struct {
	ID                   string `json:"id"`
	EmployeeID           string `json:"employee_id"`
	Date                 string `json:"date"`
	OriginalSessionID    string `json:"original_session_id"`
	OriginalDeviceID     string `json:"original_device_id"`
	OriginalDeviceInfo   string `json:"original_device_info"`
	AttemptingDeviceID   string `json:"attempting_device_id"`
	AttemptingDeviceInfo string `json:"attempting_device_info"`
	DetectedAt           string `json:"detected_at"`
	Resolved             bool   `json:"resolved"`
}

// timePtrToString safely converts a *time.Time to an RFC3339 string.
func timePtrToString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	format := t.UTC().Format(time.RFC3339)
	return &format
}

// ToResponse maps a Session to its API representation.
func ToResponse(s Session) SessionResponse {
	var terminatedBy *string
	if s.TerminatedBy != nil {
		v := string(*s.TerminatedBy)
		terminatedBy = &v
	}

	return SessionResponse{
		ID:                  s.ID,
		EmployeeID:          s.EmployeeID,
		PFNumber:            s.PFNumber,
		EmployeeName:        s.EmployeeName,
		Date:                s.Date,
		DeviceID:            s.DeviceID,
		DeviceInfo:          s.Device.DeviceInfo(),
		ClockInTime:         s.ClockInTime,
		ClockInTimestamp:    s.ClockInTimestamp.UTC().Format(time.RFC3339),
		ClockOutTime:        s.ClockOutTime,
		ClockOutTimestamp:   timePtrToString(s.ClockOutTimestamp),
		LastHeartbeat:       s.LastHeartbeat.UTC().Format(time.RFC3339),
		HeartbeatCount:      s.HeartbeatCount,
		ClockInLatitude:     s.ClockInLatitude,
		ClockInLongitude:    s.ClockInLongitude,
		ClockOutLatitude:    s.ClockOutLatitude,
		ClockOutLongitude:   s.ClockOutLongitude,
		OfficeID:            s.OfficeID,
		OfficeName:          s.OfficeName,
		ClockOutOfficeID:    s.ClockOutOfficeID,
		ClockOutOfficeName:  s.ClockOutOfficeName,
		SessionActive:       s.SessionActive,
		Status:              s.Status,
		IsLate:              s.IsLate,
		LateMinutes:         s.LateMinutes,
		IsEarlyClockOut:     s.IsEarlyClockOut,
		EarlyClockOutReason: s.EarlyClockOutReason,
		SessionExpired:      s.SessionExpired,
		SessionTerminatedBy: terminatedBy,
		HasDeviceConflict:   s.HasDeviceConflict,
		RiskLevel:           s.Device.RiskLevel,
		RiskScore:           s.Device.RiskScore,
		TimeValidation:      string(s.TimeIntegrity.Method),
		ClockSkewMillis:     s.TimeIntegrity.SkewMillis,
		IsTimeValid:         s.TimeIntegrity.Verified,
		TotalHours:          s.TotalHours,
	}
}

func ToConflictResponse(c DeviceConflict) ConflictResponse {
	return ConflictResponse{
		ID:                   c.ID,
		EmployeeID:           c.EmployeeID,
		Date:                 c.Date,
		OriginalSessionID:    c.OriginalSessionID,
		OriginalDeviceID:     c.OriginalDeviceID,
		OriginalDeviceInfo:   c.OriginalDeviceInfo,
		AttemptingDeviceID:   c.AttemptingDeviceID,
		AttemptingDeviceInfo: c.AttemptingDeviceInfo,
		DetectedAt:           c.DetectedAt.UTC().Format(time.RFC3339),
		Resolved:             c.Resolved,
	}
}
