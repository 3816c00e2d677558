package report

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/report"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/workday"
)

// WorkDaysPerWeek is Monday to Friday.
const WorkDaysPerWeek = 5

// Weights of the weekly score.
const (
	weightPerformance = 0.4
	weightPunctuality = 0.3
	weightAttendance  = 0.3
)

// Policy holds the working hours a week is measured against.
type Policy struct {
	WorkStart     workday.TimeOfDay
	WorkEnd       workday.TimeOfDay
	StandardHours float64
}

// Bucket maps a percentage onto the score step it earns.
func Bucket(pct float64) float64 {
	switch {
	case pct >= 95:
		return 100
	case pct >= 85:
		return 90
	case pct >= 75:
		return 80
	case pct >= 65:
		return 70
	case pct >= 50:
		return 60
	}
	return 0
}

// GradeFor combines the three rates into a weighted score and its letter grade.
func GradeFor(performance, punctuality, attendance float64) (float64, report.Grade) {
	score := weightPerformance*Bucket(performance) +
		weightPunctuality*Bucket(punctuality) +
		weightAttendance*Bucket(attendance)

	switch {
	case score >= 95:
		return score, report.GradeAPlus
	case score >= 90:
		return score, report.GradeA
	case score >= 85:
		return score, report.GradeBPlus
	case score >= 80:
		return score, report.GradeB
	case score >= 75:
		return score, report.GradeCPlus
	case score >= 70:
		return score, report.GradeC
	case score >= 60:
		return score, report.GradeD
	}
	return score, report.GradeF
}

// AggregateWeek derives the weekly statistics of employeeID from sessions.
// Sessions of other employees or outside the week are ignored. Work days
// after asOf, and asOf itself while nobody has clocked in, do not break the
// current streak.
func AggregateWeek(employeeID string, sessions []session.Session, anyDay time.Time, asOf time.Time, p Policy) report.WeeklyStats {
	if p.StandardHours <= 0 {
		p.StandardHours = 8
	}

	start := workday.WeekStart(anyDay)
	end := start.AddDate(0, 0, 6)
	today := asOf.In(start.Location()).Format(session.DateLayout)

	byDate := make(map[string][]session.Session)
	for _, s := range sessions {
		if s.EmployeeID != employeeID {
			continue
		}
		byDate[s.Date] = append(byDate[s.Date], s)
	}

	stats := report.WeeklyStats{
		EmployeeID:     employeeID,
		WeekStart:      start.Format(session.DateLayout),
		WeekEnd:        end.Format(session.DateLayout),
		WorkDaysInWeek: WorkDaysPerWeek,
		Days:           make([]report.DayStats, 0, 7),
	}

	run := 0
	for i := 0; i < 7; i++ {
		date := start.AddDate(0, 0, i)
		day := aggregateDay(date, byDate[date.Format(session.DateLayout)], p)
		stats.Days = append(stats.Days, day)

		if day.Present {
			stats.DaysPresent++
			stats.TotalHours += day.Hours
			if day.IsLate {
				stats.LateArrivals++
			}
			if day.EarlyDeparture {
				stats.EarlyDepartures++
			}
			if stats.EmployeeName == "" {
				first := byDate[day.Date][0]
				stats.EmployeeName = first.EmployeeName
				stats.PFNumber = first.PFNumber
			}
		}

		if !day.IsWorkDay || day.Date > today || (day.Date == today && !day.Present) {
			continue
		}
		if day.Present {
			run++
			if run > stats.LongestStreak {
				stats.LongestStreak = run
			}
		} else {
			run = 0
		}
	}
	stats.CurrentStreak = run

	var performance, punctuality float64
	if stats.DaysPresent > 0 {
		present := float64(stats.DaysPresent)
		performance = stats.TotalHours / (present * p.StandardHours) * 100
		punctuality = (present - float64(stats.LateArrivals)) / present * 100
		stats.AverageHours = round2(stats.TotalHours / present)
	}
	attendance := math.Min(100, float64(stats.DaysPresent)/WorkDaysPerWeek*100)

	stats.Score, stats.Grade = GradeFor(performance, punctuality, attendance)
	stats.PerformancePercentage = round2(performance)
	stats.PunctualityRate = round2(punctuality)
	stats.AttendanceRate = round2(attendance)
	stats.TotalHours = round2(stats.TotalHours)
	stats.Score = round2(stats.Score)
	return stats
}

func aggregateDay(date time.Time, sessions []session.Session, p Policy) report.DayStats {
	day := report.DayStats{
		Date:      date.Format(session.DateLayout),
		Weekday:   date.Weekday().String(),
		IsWorkDay: workday.IsWorkDay(date.Weekday()),
		Sessions:  len(sessions),
		Present:   len(sessions) > 0,
	}
	if !day.Present {
		return day
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].ClockInTimestamp.Before(sessions[j].ClockInTimestamp)
	})

	first := sessions[0]
	clockIn := first.ClockInTime
	day.ClockIn = &clockIn

	startSecs := p.WorkStart.Minutes() * 60
	if secs, ok := clockSeconds(first.ClockInTime); ok && secs > startSecs {
		day.IsLate = true
		day.LateMinutes = (secs - startSecs) / 60
	}

	var lastOut *session.Session
	for i := range sessions {
		s := sessions[i]
		day.Hours += s.TotalHours
		if s.SessionActive {
			day.StillOpen = true
		}
		if s.ClockOutTime != nil && s.ClockOutTimestamp != nil {
			if lastOut == nil || s.ClockOutTimestamp.After(*lastOut.ClockOutTimestamp) {
				lastOut = &sessions[i]
			}
		}
	}

	if lastOut != nil {
		clockOut := *lastOut.ClockOutTime
		day.ClockOut = &clockOut
		if !day.StillOpen {
			if secs, ok := clockSeconds(clockOut); ok && secs < p.WorkEnd.Minutes()*60 {
				day.EarlyDeparture = true
			}
		}
	}
	day.Hours = round2(day.Hours)
	return day
}

// clockSeconds parses HH:MM[:SS] into seconds since midnight.
func clockSeconds(clock string) (int, bool) {
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return 0, false
		}
		total += v * []int{3600, 60, 1}[i]
	}
	return total, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
