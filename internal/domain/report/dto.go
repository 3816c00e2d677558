package report

import (
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
)

// WeeklyReportRequest selects the week containing Week (YYYY-MM-DD). An empty
// Week means the current week.
type WeeklyReportRequest struct {
	EmployeeID string `json:"employee_id"`
	Week       string `json:"week"`
}

func (r *WeeklyReportRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Week != "" {
		if _, ok := validator.IsValidDate(r.Week); !ok {
			errs = append(errs, validator.ValidationError{
				Field:   "week",
				Message: "week must be a date in YYYY-MM-DD format",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Day resolves Week to a date in loc, falling back to now.
func (r *WeeklyReportRequest) Day(now time.Time, loc *time.Location) time.Time {
	if r.Week == "" {
		return now.In(loc)
	}
	day, err := time.ParseInLocation("2006-01-02", r.Week, loc)
	if err != nil {
		return now.In(loc)
	}
	return day
}
