package http

import (
	"net/http"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
	"github.com/cmlabs-hris/presence-backend-go/internal/handler/http/response"
)

type OfficeHandler interface {
	List(w http.ResponseWriter, r *http.Request)
}

type officeHandlerImpl struct {
	officeRepo office.OfficeRepository
}

func NewOfficeHandler(officeRepo office.OfficeRepository) OfficeHandler {
	return &officeHandlerImpl{
		officeRepo: officeRepo,
	}
}

// List returns the active offices.
func (h *officeHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	offices, err := h.officeRepo.ListActive(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]office.OfficeResponse, 0, len(offices))
	for _, o := range offices {
		out = append(out, office.ToResponse(o))
	}
	response.Success(w, out)
}
