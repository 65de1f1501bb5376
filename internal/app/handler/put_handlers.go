package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/models"
)

type PutHandler struct {
	service service.URLServiceIface
	logger  *zap.Logger
}

func NewPut(s service.URLServiceIface, l *zap.Logger) *PutHandler {
	return &PutHandler{
		service: s,
		logger:  l,
	}
}

// Update edits the destination and code of a mapping the caller owns.
func (h *PutHandler) Update(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	var request models.UpdateRequest
	if !decodeOrReject(res, req, h.logger, &request) {
		return
	}

	result, err := h.service.UpdateMapping(ctx, chi.URLParam(req, "code"), service.UpdateRequest{
		Destination: request.URL,
		CustomCode:  request.CustomCode,
	}, userID)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	writeJSON(res, http.StatusOK, models.UpdateResponse{
		Status:  result.Status,
		Mapping: toModel(h.service, *result.Mapping),
	})
}
