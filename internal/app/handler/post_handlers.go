package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/models"
)

type PostHandler struct {
	service service.URLServiceIface
	logger  *zap.Logger
}

func NewPost(s service.URLServiceIface, l *zap.Logger) *PostHandler {
	return &PostHandler{
		service: s,
		logger:  l,
	}
}

// PlainBody shortens the URL sent as a text body. A custom code may be
// passed as the "code" query parameter.
func (h *PostHandler) PlainBody(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 1048576))
	defer req.Body.Close()
	if err != nil {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	destination := strings.TrimSpace(string(body))
	if destination == "" {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	m, err := h.service.Shorten(ctx, destination, userID, req.URL.Query().Get("code"))
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	res.Header().Set("Content-Type", "text/plain; charset=utf-8")
	res.WriteHeader(http.StatusCreated)
	_, _ = res.Write([]byte(h.service.ShortURL(m.Code)))
}

// Create shortens the URL of a JSON models.Request.
func (h *PostHandler) Create(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(res, req)
	if !ok {
		return
	}

	var request models.Request
	if !decodeOrReject(res, req, h.logger, &request) {
		return
	}

	destination := strings.TrimSpace(request.URL)
	if destination == "" {
		writeError(res, http.StatusBadRequest, "url must not be empty")
		return
	}

	m, err := h.service.Shorten(ctx, destination, userID, request.CustomCode)
	if err != nil {
		writeServiceError(res, h.logger, err)
		return
	}

	writeJSON(res, http.StatusCreated, models.Response{Result: h.service.ShortURL(m.Code), Code: m.Code})
}
