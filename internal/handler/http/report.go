package http

import (
	"net/http"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/report"
	"github.com/cmlabs-hris/presence-backend-go/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type ReportHandler interface {
	MyWeekly(w http.ResponseWriter, r *http.Request)

	// Admin
	TeamWeekly(w http.ResponseWriter, r *http.Request)
	EmployeeWeekly(w http.ResponseWriter, r *http.Request)
}

type reportHandlerImpl struct {
	reportService report.ReportService
}

func NewReportHandler(reportService report.ReportService) ReportHandler {
	return &reportHandlerImpl{
		reportService: reportService,
	}
}

// MyWeekly returns the caller's report for the week in ?week=YYYY-MM-DD.
func (h *reportHandlerImpl) MyWeekly(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	h.weekly(w, r, identity.EmployeeID)
}

// EmployeeWeekly implements ReportHandler.
func (h *reportHandlerImpl) EmployeeWeekly(w http.ResponseWriter, r *http.Request) {
	h.weekly(w, r, chi.URLParam(r, "employeeID"))
}

// TeamWeekly implements ReportHandler.
func (h *reportHandlerImpl) TeamWeekly(w http.ResponseWriter, r *http.Request) {
	result, err := h.reportService.TeamWeeklyReport(r.Context(), report.WeeklyReportRequest{
		Week: r.URL.Query().Get("week"),
	})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *reportHandlerImpl) weekly(w http.ResponseWriter, r *http.Request, employeeID string) {
	result, err := h.reportService.WeeklyReport(r.Context(), report.WeeklyReportRequest{
		EmployeeID: employeeID,
		Week:       r.URL.Query().Get("week"),
	})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}
