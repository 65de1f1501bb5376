package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/models"
)

// AdminHandler serves the routes behind middleware.RequireAdmin.
type AdminHandler struct {
	service service.URLServiceIface
	logger  *zap.Logger
}

func NewAdmin(s service.URLServiceIface, l *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: s,
		logger:  l,
	}
}

// Overview lists every mapping with its creator and click count.
func (h *AdminHandler) Overview(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	rows, err := h.service.AdminOverview(ctx)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	writeJSON(res, http.StatusOK, lo.Map(rows, func(r service.OverviewEntry, _ int) models.AdminMapping {
		m := toModel(h.service, r.Mapping)
		m.Clicks = lo.ToPtr(r.Clicks)
		return models.AdminMapping{Mapping: m, CreatedBy: r.Mapping.OwnerID}
	}))
}

// DeleteOwner removes an owner's mappings and clicks.
func (h *AdminHandler) DeleteOwner(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	owner := chi.URLParam(req, "owner")

	deleted, err := h.service.DeleteOwner(ctx, owner)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	writeJSON(res, http.StatusOK, models.DeleteOwnerResponse{Owner: owner, Deleted: deleted})
}
