package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/capture"
)

const unauthorizedMessage = "Unauthorized: Invalid or missing API key"

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// statusFor maps a capture failure onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, capture.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, capture.ErrTargetUnreachable):
		return http.StatusBadRequest, "Invalid or inaccessible URL"
	case errors.Is(err, capture.ErrElementNotFound):
		return http.StatusNotFound, "Element not found for selector"
	case errors.Is(err, capture.ErrRenderTimeout):
		return http.StatusGatewayTimeout, "Page load timed out"
	case errors.Is(err, capture.ErrRendererUnavailable), errors.Is(err, capture.ErrHandleLost):
		return http.StatusServiceUnavailable, "Renderer unavailable, please retry"
	default:
		return http.StatusInternalServerError, "Failed to capture screenshot"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", requestID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("capture failed", fields...)
	} else {
		s.logger.Info("capture rejected", fields...)
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: msg, Status: status}})
}
