package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/accountd-io/authserver/internal/services"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func contextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextSubjectKey, subject)
}

func accountIDFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok || strings.TrimSpace(subject) == "" {
		return "", errors.New("missing subject")
	}
	return subject, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a typed service failure to an HTTP response.
// Auth failures are deliberately undifferentiated at 401 so callers
// cannot probe account existence.
func writeServiceError(w http.ResponseWriter, err error) {
	svcErr := services.AsError(err)
	if svcErr == nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch svcErr.Kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindConflict:
		status = http.StatusConflict
	case services.KindAuth:
		status = http.StatusUnauthorized
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindInternal:
		status = http.StatusInternalServerError
	}

	message := svcErr.Message
	if svcErr.Kind == services.KindInternal {
		// Internal causes stay out of responses.
		message = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: string(svcErr.Code)})
}
