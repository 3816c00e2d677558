package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/report"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/workday"
	"golang.org/x/sync/errgroup"
)

// teamConcurrency bounds the per-employee loads of a team report.
const teamConcurrency = 8

type ReportServiceImpl struct {
	session.SessionRepository
	policy   Policy
	location *time.Location
	now      func() time.Time
}

func NewReportService(sessionRepo session.SessionRepository, policy Policy, location *time.Location, clock func() time.Time) report.ReportService {
	if location == nil {
		location = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &ReportServiceImpl{
		SessionRepository: sessionRepo,
		policy:            policy,
		location:          location,
		now:               clock,
	}
}

func (s *ReportServiceImpl) week(req report.WeeklyReportRequest) (time.Time, string, string) {
	day := req.Day(s.now(), s.location)
	start := workday.WeekStart(day)
	return day, start.Format(session.DateLayout), start.AddDate(0, 0, 6).Format(session.DateLayout)
}

// WeeklyReport implements report.ReportService.
func (s *ReportServiceImpl) WeeklyReport(ctx context.Context, req report.WeeklyReportRequest) (report.WeeklyStats, error) {
	if err := req.Validate(); err != nil {
		return report.WeeklyStats{}, err
	}
	if validator.IsEmpty(req.EmployeeID) {
		return report.WeeklyStats{}, validator.ValidationErrors{{Field: "employee_id", Message: "employee_id is required"}}
	}

	day, from, to := s.week(req)
	sessions, err := s.SessionRepository.ListByEmployeeBetween(ctx, req.EmployeeID, from, to)
	if err != nil {
		return report.WeeklyStats{}, fmt.Errorf("load sessions for %s: %w", req.EmployeeID, err)
	}

	return AggregateWeek(req.EmployeeID, sessions, day, s.now(), s.policy), nil
}

// TeamWeeklyReport implements report.ReportService.
func (s *ReportServiceImpl) TeamWeeklyReport(ctx context.Context, req report.WeeklyReportRequest) (report.TeamWeeklyReport, error) {
	if err := req.Validate(); err != nil {
		return report.TeamWeeklyReport{}, err
	}

	day, from, to := s.week(req)
	employeeIDs, err := s.SessionRepository.ListEmployeeIDsBetween(ctx, from, to)
	if err != nil {
		return report.TeamWeeklyReport{}, fmt.Errorf("list employees for week %s: %w", from, err)
	}

	now := s.now()
	results := make([]report.WeeklyStats, len(employeeIDs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(teamConcurrency)
	for i, employeeID := range employeeIDs {
		g.Go(func() error {
			sessions, err := s.SessionRepository.ListByEmployeeBetween(gCtx, employeeID, from, to)
			if err != nil {
				return fmt.Errorf("load sessions for %s: %w", employeeID, err)
			}
			results[i] = AggregateWeek(employeeID, sessions, day, now, s.policy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report.TeamWeeklyReport{}, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].EmployeeID < results[j].EmployeeID
	})

	return report.TeamWeeklyReport{
		WeekStart:   from,
		WeekEnd:     to,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Employees:   results,
	}, nil
}
