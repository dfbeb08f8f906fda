package web

// errors.go renders every API error the same way: the technical error is
// logged with the request id, the client gets the coded operator message
// from pipeline.MapError.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/logging"
	"github.com/JonMunkholm/swamp/internal/pipeline"
	"github.com/JonMunkholm/swamp/internal/process"
)

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var invalid *dataset.ValidationError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, process.ErrUnknownDataType), errors.Is(err, pipeline.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, dataset.ErrEmptyFile), errors.As(err, &invalid), errors.Is(err, errNoInput):
		return http.StatusBadRequest
	case strings.HasPrefix(pipeline.MapError(err).Code, "CSV"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its coded message with statusFor(err).
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := pipeline.MapError(err)
	if errors.Is(err, errNoInput) {
		msg = pipeline.UserMessage{
			Message: "No CSV provided",
			Action:  "Send the CSV as the request body or as the \"file\" form field",
			Code:    "CSV005",
		}
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, r, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v with status. Encoding errors are logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
