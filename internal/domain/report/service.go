package report

import "context"

// ReportService builds weekly performance reports from attendance sessions.
type ReportService interface {
	WeeklyReport(ctx context.Context, req WeeklyReportRequest) (WeeklyStats, error)
	TeamWeeklyReport(ctx context.Context, req WeeklyReportRequest) (TeamWeeklyReport, error)
}
