// Package device derives a stable device identifier and a risk assessment
// from the attributes a mobile client reports.
package device

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"golang.org/x/crypto/blake2b"
)

// Attributes are the device properties sent with every clock action.
type Attributes struct {
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	HardwareID     string `json:"hardware_id"`
	InstallationID string `json:"installation_id"`
	OSVersion      string `json:"os_version"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	IsRooted       bool   `json:"is_rooted"`
	IsEmulator     bool   `json:"is_emulator"`
	DeveloperMode  bool   `json:"developer_mode"`
	USBDebugging   bool   `json:"usb_debugging"`
}

// Risk levels
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Risk weights and thresholds
const (
	weightRooted        = 40
	weightEmulator      = 40
	weightDeveloperMode = 15
	weightUSBDebugging  = 15

	thresholdHigh   = 50
	thresholdMedium = 20
)

// SwitchingWindow is the trailing window DetectSwitchingPattern looks at.
const SwitchingWindow = 7 * 24 * time.Hour

var emulatorSignatures = []string{
	"generic", "emulator", "sdk_gphone", "android sdk built for",
	"genymotion", "goldfish", "ranchu", "vbox86", "bluestacks",
}

// Risk is the outcome of AssessRisk.
type Risk struct {
	Level   string
	Score   int
	Reasons []string
}

// Switching is the outcome of DetectSwitchingPattern.
type Switching struct {
	Suspicious          bool
	DistinctDeviceCount int
	SessionCount        int
}

// Fingerprint hashes the identifying attributes into a hex device id. The
// same attributes always produce the same id.
func Fingerprint(a Attributes) string {
	parts := []string{
		normalize(a.Manufacturer),
		normalize(a.Model),
		normalize(a.HardwareID),
		normalize(a.InstallationID),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// LooksLikeEmulator reports whether the reported identity matches a known
// emulator signature.
func LooksLikeEmulator(a Attributes) bool {
	haystack := strings.ToLower(a.Manufacturer + " " + a.Model + " " + a.Fingerprint)
	for _, sig := range emulatorSignatures {
		if strings.Contains(haystack, sig) {
			return true
		}
	}
	return false
}

// AssessRisk scores the device. Each flag adds its weight; the level is
// bucketed from the total.
func AssessRisk(a Attributes) Risk {
	var r Risk

	if a.IsRooted {
		r.Score += weightRooted
		r.Reasons = append(r.Reasons, "device is rooted")
	}
	if a.IsEmulator || LooksLikeEmulator(a) {
		r.Score += weightEmulator
		r.Reasons = append(r.Reasons, "emulator signature detected")
	}
	if a.DeveloperMode {
		r.Score += weightDeveloperMode
		r.Reasons = append(r.Reasons, "developer mode enabled")
	}
	if a.USBDebugging {
		r.Score += weightUSBDebugging
		r.Reasons = append(r.Reasons, "USB debugging enabled")
	}

	switch {
	case r.Score >= thresholdHigh:
		r.Level = RiskHigh
	case r.Score >= thresholdMedium:
		r.Level = RiskMedium
	default:
		r.Level = RiskLow
	}
	return r
}

// Snapshot builds the device state persisted with a new session.
func Snapshot(a Attributes, r Risk) session.DeviceSnapshot {
	return session.DeviceSnapshot{
		Model:         a.Model,
		Manufacturer:  a.Manufacturer,
		OSVersion:     a.OSVersion,
		IsRooted:      a.IsRooted,
		IsEmulator:    a.IsEmulator || LooksLikeEmulator(a),
		DeveloperMode: a.DeveloperMode,
		USBDebugging:  a.USBDebugging,
		RiskLevel:     r.Level,
		RiskScore:     r.Score,
		RiskReasons:   r.Reasons,
	}
}

// DetectSwitchingPattern flags an employee whose sessions in the trailing
// window came from more than two devices across more than three sessions.
// It is an alert signal only.
func DetectSwitchingPattern(sessions []session.Session, now time.Time) Switching {
	since := now.Add(-SwitchingWindow)
	devices := make(map[string]struct{})
	var out Switching

	for _, s := range sessions {
		if s.ClockInTimestamp.Before(since) || s.ClockInTimestamp.After(now) {
			continue
		}
		out.SessionCount++
		devices[s.DeviceID] = struct{}{}
	}

	out.DistinctDeviceCount = len(devices)
	out.Suspicious = out.DistinctDeviceCount > 2 && out.SessionCount > 3
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
