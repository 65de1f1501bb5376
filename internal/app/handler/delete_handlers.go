package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
)

type DeleteHandler struct {
	service service.URLServiceIface
	logger  *zap.Logger
}

func NewDelete(s service.URLServiceIface, l *zap.Logger) *DeleteHandler {
	return &DeleteHandler{
		service: s,
		logger:  l,
	}
}

// Delete removes one of the caller's mappings together with its clicks.
func (h *DeleteHandler) Delete(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	if err := h.service.DeleteMapping(ctx, chi.URLParam(req, "code"), userID); err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	res.WriteHeader(http.StatusNoContent)
}
