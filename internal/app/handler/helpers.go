// Package handler contains the HTTP handlers of the shortener. It decodes
// request bodies, calls the URL service and translates its errors into
// status codes.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/middleware"
	"github.com/atinyakov/shortlinks/internal/models"
	"github.com/atinyakov/shortlinks/internal/storage"
)

const requestTimeout = 3 * time.Second

// malformedRequest represents an error with a malformed HTTP request.
type malformedRequest struct {
	status int
	msg    string
}

func (mr *malformedRequest) Error() string {
	return mr.msg
}

// decodeJSONBody decodes a JSON request body into dst, rejecting unknown
// fields, trailing data and bodies over 1MB.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" {
		mediaType := strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
		if mediaType != "application/json" {
			msg := "Content-Type header is not application/json"
			return &malformedRequest{status: http.StatusUnsupportedMediaType, msg: msg}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
			return &malformedRequest{status: http.StatusBadRequest, msg: msg}

		case errors.Is(err, io.ErrUnexpectedEOF):
			msg := "Request body contains badly-formed JSON"
			return &malformedRequest{status: http.StatusBadRequest, msg: msg}

		case errors.As(err, &unmarshalTypeError):
			msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
			return &malformedRequest{status: http.StatusBadRequest, msg: msg}

		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			msg := fmt.Sprintf("Request body contains unknown field %s", fieldName)
			return &malformedRequest{status: http.StatusBadRequest, msg: msg}

		case errors.Is(err, io.EOF):
			msg := "Request body must not be empty"
			return &malformedRequest{status: http.StatusBadRequest, msg: msg}

		case errors.As(err, &maxBytesError):
			msg := "Request body must not be larger than 1MB"
			return &malformedRequest{status: http.StatusRequestEntityTooLarge, msg: msg}

		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		msg := "Request body must only contain a single JSON object"
		return &malformedRequest{status: http.StatusBadRequest, msg: msg}
	}

	return nil
}

// decodeOrReject decodes a JSON body and answers the request itself on failure.
func decodeOrReject(res http.ResponseWriter, req *http.Request, logger *zap.Logger, dst interface{}) bool {
	err := decodeJSONBody(res, req, dst)
	if err == nil {
		return true
	}

	var mr *malformedRequest
	if errors.As(err, &mr) {
		writeError(res, mr.status, mr.msg)
		return false
	}

	logger.Error("decode request body", zap.Error(err))
	writeError(res, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	return false
}

func writeJSON(res http.ResponseWriter, status int, body interface{}) {
	response, err := json.Marshal(body)
	if err != nil {
		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	_, _ = res.Write(response)
}

func writeError(res http.ResponseWriter, status int, msg string) {
	writeJSON(res, status, models.ErrorResponse{Error: msg})
}

// writeServiceError maps the service error taxonomy onto HTTP. Transient and
// unexpected failures get a generic message; details only go to the log.
func writeServiceError(res http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrCustomCodeBlacklisted):
		writeError(res, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrCustomCodeTaken):
		writeError(res, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrForbidden):
		writeError(res, http.StatusForbidden, "you do not own this link")
	case errors.Is(err, storage.ErrNotFound):
		writeError(res, http.StatusNotFound, "link not found")
	case errors.Is(err, service.ErrGenerationExhausted):
		logger.Warn("code allocation exhausted", zap.Error(err))
		writeError(res, http.StatusServiceUnavailable, "temporarily unable to create a link, please retry")
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(res, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// callerID returns the user set by middleware.WithJWT, answering 401 when absent.
func callerID(res http.ResponseWriter, req *http.Request) (string, bool) {
	userID, ok := middleware.UserID(req.Context())
	if !ok {
		writeError(res, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return userID, ok
}

func toModel(s service.URLServiceIface, m storage.Mapping) models.Mapping {
	return models.Mapping{
		Code:        m.Code,
		ShortURL:    s.ShortURL(m.Code),
		OriginalURL: m.Destination,
		Custom:      m.Custom,
		CreatedAt:   m.CreatedAt,
	}
}

func toModelWithClicks(s service.URLServiceIface, rows []service.MappingClicks) []models.Mapping {
	return lo.Map(rows, func(r service.MappingClicks, _ int) models.Mapping {
		m := toModel(s, r.Mapping)
		m.Clicks = lo.ToPtr(r.Clicks)
		return m
	})
}
