package attendance

import (
	"strings"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/device"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
)

// ========================================
// ATTENDANCE DTOs
// ========================================

type ClockInRequest struct {
	Device           device.Attributes `json:"device"`
	Latitude         float64           `json:"latitude"`
	Longitude        float64           `json:"longitude"`
	AutoTimeEnabled  bool              `json:"auto_time_enabled"`
	DeviceTimeMillis int64             `json:"device_time_millis"`
}

func (r *ClockInRequest) Validate() error {
	var errs validator.ValidationErrors

	errs = append(errs, validateCoordinates(r.Latitude, r.Longitude)...)

	if validator.IsEmpty(r.Device.HardwareID) && validator.IsEmpty(r.Device.InstallationID) {
		errs = append(errs, validator.ValidationError{
			Field:   "device",
			Message: "device hardware_id or installation_id is required",
		})
	}

	if r.DeviceTimeMillis <= 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "device_time_millis",
			Message: "device_time_millis is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type ClockOutRequest struct {
	SessionID        string             `json:"session_id"`
	DeviceID         string             `json:"device_id"`
	Device           *device.Attributes `json:"device,omitempty"`
	Latitude         float64            `json:"latitude"`
	Longitude        float64            `json:"longitude"`
	Reason           string             `json:"reason"`
	AutoTimeEnabled  bool               `json:"auto_time_enabled"`
	DeviceTimeMillis int64              `json:"device_time_millis"`
}

func (r *ClockOutRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.SessionID) {
		errs = append(errs, validator.ValidationError{
			Field:   "session_id",
			Message: "session_id is required",
		})
	}

	if validator.IsEmpty(r.DeviceID) && r.Device == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "device_id",
			Message: "device_id or device is required",
		})
	}

	errs = append(errs, validateCoordinates(r.Latitude, r.Longitude)...)

	if r.DeviceTimeMillis <= 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "device_time_millis",
			Message: "device_time_millis is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// CallingDevice returns the device id of the caller, fingerprinting the
// attributes when no id was sent.
func (r *ClockOutRequest) CallingDevice() string {
	if !validator.IsEmpty(r.DeviceID) {
		return strings.TrimSpace(r.DeviceID)
	}
	if r.Device != nil {
		return device.Fingerprint(*r.Device)
	}
	return ""
}

// ValidateDeviceRequest asks whether a device may act today. An empty Date
// means today in the timezone of any active office.
type ValidateDeviceRequest struct {
	Date     string             `json:"date"`
	DeviceID string             `json:"device_id"`
	Device   *device.Attributes `json:"device,omitempty"`
}

func (r *ValidateDeviceRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Date != "" {
		if _, ok := validator.IsValidDate(r.Date); !ok {
			errs = append(errs, validator.ValidationError{
				Field:   "date",
				Message: "date must be in YYYY-MM-DD format",
			})
		}
	}

	if validator.IsEmpty(r.DeviceID) && r.Device == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "device_id",
			Message: "device_id or device is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func (r *ValidateDeviceRequest) CallingDevice() string {
	if !validator.IsEmpty(r.DeviceID) {
		return strings.TrimSpace(r.DeviceID)
	}
	if r.Device != nil {
		return device.Fingerprint(*r.Device)
	}
	return ""
}

type TimeCheckResponse struct {
	Status     string `json:"status"`
	Method     string `json:"method"`
	Verified   bool   `json:"verified"`
	SkewMillis int64  `json:"skew_millis"`
}

type RiskResponse struct {
	Level   string   `json:"level"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

type ClockInResponse struct {
	Created   bool                    `json:"created"`
	DeviceID  string                  `json:"device_id"`
	Session   session.SessionResponse `json:"session"`
	TimeCheck TimeCheckResponse       `json:"time_check"`
	Risk      RiskResponse            `json:"risk"`
}

type ClockOutResponse struct {
	SessionID       string  `json:"session_id"`
	ClockOutTime    string  `json:"clock_out_time"`
	TotalHours      float64 `json:"total_hours"`
	IsEarlyClockOut bool    `json:"is_early_clock_out"`
	OfficeID        string  `json:"office_id"`
	OfficeName      string  `json:"office_name"`
}

func validateCoordinates(lat, lng float64) validator.ValidationErrors {
	var errs validator.ValidationErrors

	if !validator.IsValidLatitude(lat) {
		errs = append(errs, validator.ValidationError{
			Field:   "latitude",
			Message: "latitude must be between -90 and 90",
		})
	}

	if !validator.IsValidLongitude(lng) {
		errs = append(errs, validator.ValidationError{
			Field:   "longitude",
			Message: "longitude must be between -180 and 180",
		})
	}

	return errs
}
