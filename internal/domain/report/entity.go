package report

// Grade is the letter grade of a week.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeCPlus Grade = "C+"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// DayStats is one calendar day of a WeeklyStats.
type DayStats struct {
	Date           string  `json:"date"`
	Weekday        string  `json:"weekday"`
	IsWorkDay      bool    `json:"is_work_day"`
	Present        bool    `json:"present"`
	Sessions       int     `json:"sessions"`
	ClockIn        *string `json:"clock_in,omitempty"`
	ClockOut       *string `json:"clock_out,omitempty"`
	Hours          float64 `json:"hours"`
	IsLate         bool    `json:"is_late"`
	LateMinutes    int     `json:"late_minutes"`
	EarlyDeparture bool    `json:"early_departure"`
	StillOpen      bool    `json:"still_open"`
}

// WeeklyStats is derived from one employee's sessions for a Monday to Sunday
// week. It is rebuilt on every request and never stored.
type WeeklyStats struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name,omitempty"`
	PFNumber     string `json:"pf_number,omitempty"`
	WeekStart    string `json:"week_start"`
	WeekEnd      string `json:"week_end"`

	Days []DayStats `json:"days"`

	DaysPresent     int     `json:"days_present"`
	WorkDaysInWeek  int     `json:"work_days_in_week"`
	TotalHours      float64 `json:"total_hours"`
	AverageHours    float64 `json:"average_hours"`
	LateArrivals    int     `json:"late_arrivals"`
	EarlyDepartures int     `json:"early_departures"`
	CurrentStreak   int     `json:"current_streak"`
	LongestStreak   int     `json:"longest_streak"`

	PerformancePercentage float64 `json:"performance_percentage"`
	PunctualityRate       float64 `json:"punctuality_rate"`
	AttendanceRate        float64 `json:"attendance_rate"`
	Score                 float64 `json:"score"`
	Grade                 Grade   `json:"grade"`
}

// TeamWeeklyReport holds the WeeklyStats of every employee active in a week.
type TeamWeeklyReport struct {
	WeekStart   string        `json:"week_start"`
	WeekEnd     string        `json:"week_end"`
	GeneratedAt string        `json:"generated_at"`
	Employees   []WeeklyStats `json:"employees"`
}
