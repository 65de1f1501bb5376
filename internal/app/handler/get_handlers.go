package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/middleware"
	"github.com/atinyakov/shortlinks/internal/models"
	"github.com/atinyakov/shortlinks/internal/storage"
)

type GetHandler struct {
	service service.URLServiceIface
	logger  *zap.Logger
}

func NewGet(s service.URLServiceIface, l *zap.Logger) *GetHandler {
	return &GetHandler{
		service: s,
		logger:  l,
	}
}

// Redirect resolves a code and answers 302 with the destination.
func (h *GetHandler) Redirect(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	code := chi.URLParam(req, "code")

	destination, err := h.service.Resolve(ctx, code, service.Visit{
		SourceAddress:    middleware.RemoteHost(req.RemoteAddr),
		ClientDescriptor: req.UserAgent(),
	})
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(res, "URL not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("resolve failed", zap.String("code", code), zap.Error(err))
		http.Error(res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	res.Header().Set("Location", destination)
	res.WriteHeader(http.StatusFound)
}

func (h *GetHandler) PingDB(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	if err := h.service.PingContext(ctx); err != nil {
		h.logger.Error("ping failed", zap.Error(err))
		http.Error(res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	res.WriteHeader(http.StatusOK)
}

// List returns the caller's mappings, or 204 when there are none.
func (h *GetHandler) List(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	mappings, err := h.service.ListByOwner(ctx, userID)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	if len(mappings) == 0 {
		res.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(res, http.StatusOK, lo.Map(mappings, func(m storage.Mapping, _ int) models.Mapping {
		return toModel(h.service, m)
	}))
}

// Logs lists click events on the caller's mappings, newest first.
func (h *GetHandler) Logs(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	entries, err := h.service.ClickLog(ctx, userID)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	writeJSON(res, http.StatusOK, lo.Map(entries, func(e service.ClickLogEntry, _ int) models.ClickLogEntry {
		return models.ClickLogEntry{
			Code:             e.Code,
			OccurredAt:       e.OccurredAt,
			SourceAddress:    e.SourceAddress,
			Region:           e.Region,
			ClientDescriptor: e.ClientDescriptor,
		}
	}))
}

func (h *GetHandler) Stats(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	stats, err := h.service.MappingStats(ctx, chi.URLParam(req, "code"), userID)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	writeJSON(res, http.StatusOK, models.StatsResponse{
		Mapping:  toModel(h.service, *stats.Mapping),
		Clicks:   stats.Clicks,
		ByRegion: stats.ByRegion,
	})
}

func (h *GetHandler) Dashboard(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	d, err := h.service.Dashboard(ctx, userID)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	writeJSON(res, http.StatusOK, models.DashboardResponse{
		TotalClicks: d.TotalClicks,
		PerMapping:  toModelWithClicks(h.service, d.Mappings),
		PerRegion:   d.ByRegion,
	})
}
