package report

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/report"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
	"github.com/cmlabs-hris/presence-backend-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, repo session.SessionRepository, employeeID string, sessions ...session.Session) {
	t.Helper()
	for _, s := range sessions {
		s.ID = ""
		s.EmployeeID = employeeID
		_, err := repo.CreateIfNoActive(context.Background(), s)
		require.NoError(t, err)
	}
}

func newTestService(repo session.SessionRepository) report.ReportService {
	return NewReportService(repo, policy, eat, func() time.Time { return nextWeek })
}

func TestWeeklyReport(t *testing.T) {
	repo := memory.NewSessionRepository()
	seed(t, repo, "emp-1",
		closed(0, "08:00:00", "17:00:00", 9),
		closed(1, "08:20:00", "17:00:00", 8.67),
	)
	seed(t, repo, "emp-2", closed(0, "08:00:00", "17:00:00", 9))

	svc := newTestService(repo)
	stats, err := svc.WeeklyReport(context.Background(), report.WeeklyReportRequest{
		EmployeeID: "emp-1",
		Week:       "2024-03-06",
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-03-04", stats.WeekStart)
	assert.Equal(t, 2, stats.DaysPresent)
	assert.Equal(t, 1, stats.LateArrivals)
	assert.InDelta(t, 17.67, stats.TotalHours, 1e-9)
}

func TestWeeklyReport_DefaultsToCurrentWeek(t *testing.T) {
	repo := memory.NewSessionRepository()
	seed(t, repo, "emp-1", closed(0, "08:00:00", "17:00:00", 9))

	stats, err := newTestService(repo).WeeklyReport(context.Background(), report.WeeklyReportRequest{EmployeeID: "emp-1"})
	require.NoError(t, err)

	assert.Equal(t, "2024-03-11", stats.WeekStart)
	assert.Zero(t, stats.DaysPresent)
	assert.Equal(t, report.GradeF, stats.Grade)
}

func TestWeeklyReport_Validation(t *testing.T) {
	svc := newTestService(memory.NewSessionRepository())

	_, err := svc.WeeklyReport(context.Background(), report.WeeklyReportRequest{Week: "2024-03-06"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "employee_id", verrs[0].Field)

	_, err = svc.WeeklyReport(context.Background(), report.WeeklyReportRequest{EmployeeID: "emp-1", Week: "06/03/2024"})
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, session.KindValidation, session.Kind(err))
}

func TestTeamWeeklyReport(t *testing.T) {
	repo := memory.NewSessionRepository()
	seed(t, repo, "emp-3", closed(2, "08:00:00", "17:00:00", 9))
	seed(t, repo, "emp-1", closed(0, "08:00:00", "17:00:00", 9))
	seed(t, repo, "emp-2",
		closed(0, "08:00:00", "17:00:00", 9),
		closed(1, "08:00:00", "17:00:00", 9),
	)
	// Previous week only, not part of the team.
	seed(t, repo, "emp-9", closed(-3, "08:00:00", "17:00:00", 9))

	team, err := newTestService(repo).TeamWeeklyReport(context.Background(), report.WeeklyReportRequest{Week: "2024-03-04"})
	require.NoError(t, err)

	assert.Equal(t, "2024-03-04", team.WeekStart)
	assert.Equal(t, "2024-03-10", team.WeekEnd)
	require.Len(t, team.Employees, 3)
	assert.Equal(t, "emp-1", team.Employees[0].EmployeeID)
	assert.Equal(t, "emp-2", team.Employees[1].EmployeeID)
	assert.Equal(t, 2, team.Employees[1].DaysPresent)
	assert.Equal(t, "emp-3", team.Employees[2].EmployeeID)
}

func TestTeamWeeklyReport_StorageError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(memory.NewSessionRepository()).TeamWeeklyReport(ctx, report.WeeklyReportRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrStorageUnavailable)
}
