// Package timeintegrity decides whether a device-reported time can be trusted.
package timeintegrity

import (
	"fmt"
	"time"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusAutoSyncDisabled   Status = "AUTO_SYNC_DISABLED"
	StatusServerTimeMismatch Status = "SERVER_TIME_MISMATCH"
	StatusValid              Status = "VALID"
	StatusUnverifiable       Status = "UNVERIFIABLE"
)

// Method names the guarantee behind a result.
type Method string

const (
	MethodServerTime          Method = "SERVER_TIME"
	MethodReasonablenessCheck Method = "REASONABLENESS_CHECK"
)

// Policy holds the tolerances of a check.
type Policy struct {
	// Tolerance is the largest accepted |device - authoritative| difference.
	Tolerance time.Duration
	// MinYear and MaxYear bound the device year when no time source is reachable.
	MinYear int
	MaxYear int
}

func DefaultPolicy() Policy {
	return Policy{
		Tolerance: 5 * time.Minute,
		MinYear:   2020,
		MaxYear:   2030,
	}
}

// Result of a time integrity check. Valid means the time may be used;
// Verified means it was confirmed against an authoritative source.
type Result struct {
	Valid             bool
	Verified          bool
	Status            Status
	Method            Method
	SkewMillis        int64
	Reason            string
	DeviceTime        time.Time
	AuthoritativeTime *time.Time
}

// Instant is the best known "now" for the action: the authoritative time when
// one was obtained, otherwise the device time.
func (r Result) Instant() time.Time {
	if r.AuthoritativeTime != nil {
		return *r.AuthoritativeTime
	}
	return r.DeviceTime
}

// Validate checks a device time against an optional authoritative time.
// Auto-sync disabled always fails regardless of skew.
func (p Policy) Validate(autoSyncEnabled bool, deviceTimeMillis int64, authoritativeMillis *int64) Result {
	r := Result{
		DeviceTime: time.UnixMilli(deviceTimeMillis).UTC(),
		Method:     MethodReasonablenessCheck,
	}
	if authoritativeMillis != nil {
		at := time.UnixMilli(*authoritativeMillis).UTC()
		r.AuthoritativeTime = &at
		r.Method = MethodServerTime
		r.SkewMillis = deviceTimeMillis - *authoritativeMillis
		if r.SkewMillis < 0 {
			r.SkewMillis = -r.SkewMillis
		}
	}

	if !autoSyncEnabled {
		r.Status = StatusAutoSyncDisabled
		r.Reason = "automatic date and time is disabled on the device"
		return r
	}

	if authoritativeMillis != nil {
		if r.SkewMillis > p.Tolerance.Milliseconds() {
			r.Status = StatusServerTimeMismatch
			r.Reason = fmt.Sprintf("device clock differs from server time by %s", (time.Duration(r.SkewMillis) * time.Millisecond).Round(time.Second))
			return r
		}
		r.Status = StatusValid
		r.Valid = true
		r.Verified = true
		return r
	}

	r.Status = StatusUnverifiable
	year := r.DeviceTime.Year()
	if year < p.MinYear || year > p.MaxYear {
		r.Reason = fmt.Sprintf("device year %d is outside %d-%d and no time source is reachable", year, p.MinYear, p.MaxYear)
		return r
	}
	r.Valid = true
	r.Reason = "no time source reachable; reasonableness check passed"
	return r
}
