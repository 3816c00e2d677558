package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
)

type SessionHandler interface {
	Heartbeat(w http.ResponseWriter, r *http.Request)

	// Admin
	Terminate(w http.ResponseWriter, r *http.Request)
	Cleanup(w http.ResponseWriter, r *http.Request)
	ListConflicts(w http.ResponseWriter, r *http.Request)
}

type sessionHandlerImpl struct {
	store          session.Store
	sessionTimeout time.Duration
}

func NewSessionHandler(store session.Store, sessionTimeout time.Duration) SessionHandler {
	return &sessionHandlerImpl{
		store:          store,
		sessionTimeout: sessionTimeout,
	}
}

// Heartbeat keeps the caller's own session alive from the device holding it.
func (h *sessionHandlerImpl) Heartbeat(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req session.HeartbeatBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	current, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	if current.EmployeeID != identity.EmployeeID {
		response.HandleError(w, session.ErrNotSessionOwner)
		return
	}
	if !current.SessionActive {
		response.HandleError(w, session.ErrAlreadyClosed)
		return
	}
	if current.DeviceID != strings.TrimSpace(req.DeviceID) {
		response.HandleError(w, &session.ConflictError{Active: current})
		return
	}

	if err := h.store.Heartbeat(r.Context(), sessionID); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Heartbeat recorded", nil)
}

// Terminate force-closes a session on behalf of an administrator.
func (h *sessionHandlerImpl) Terminate(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var body session.ForceTerminateBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := body.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	err := h.store.ForceTerminate(r.Context(), session.ForceTerminateRequest{
		SessionID: chi.URLParam(r, "id"),
		Reason:    body.Reason,
		AdminID:   identity.EmployeeID,
	})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Session terminated", nil)
}

// Cleanup expires stale sessions now instead of waiting for the scheduler.
func (h *sessionHandlerImpl) Cleanup(w http.ResponseWriter, r *http.Request) {
	expired, err := h.store.CleanupExpiredSessions(r.Context(), h.sessionTimeout)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session.CleanupResponse{
		Expired: expired,
		Timeout: h.sessionTimeout.String(),
	})
}

// ListConflicts lists device conflicts, filtered by employee_id, session_id and date.
func (h *sessionHandlerImpl) ListConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := session.ConflictFilter{
		EmployeeID: strings.TrimSpace(q.Get("employee_id")),
		SessionID:  strings.TrimSpace(q.Get("session_id")),
		Date:       strings.TrimSpace(q.Get("date")),
	}
	if filter.Date != "" {
		if _, ok := validator.IsValidDate(filter.Date); !ok {
			response.HandleError(w, validator.ValidationErrors{{Field: "date", Message: "date must be in YYYY-MM-DD format"}})
			return
		}
	}

	conflicts, err := h.store.ListConflicts(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]session.ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, session.ToConflictResponse(c))
	}
	response.SuccessWithMeta(w, out, &response.Meta{TotalItems: int64(len(out))})
}
