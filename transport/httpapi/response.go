package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pensionportal/recovery"
)

type errorBody struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	Code              recovery.Code `json:"code,omitempty"`
	Field             string        `json:"field,omitempty"`
	RetryAfterMinutes int           `json:"retryAfterMinutes,omitempty"`
	RemainingAttempts *int          `json:"remainingAttempts,omitempty"`
	Violations        []string      `json:"violations,omitempty"`
}

type healthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

var statusByCode = map[recovery.Code]int{
	recovery.CodeValidation:      http.StatusBadRequest,
	recovery.CodeInvalidSession:  http.StatusUnauthorized,
	recovery.CodeInvalidCode:     http.StatusBadRequest,
	recovery.CodeTooManyAttempts: http.StatusTooManyRequests,
	recovery.CodeRateLimited:     http.StatusTooManyRequests,
	recovery.CodeDispatchFailed:  http.StatusBadGateway,
	recovery.CodeUnavailable:     http.StatusServiceUnavailable,
	recovery.CodeInternal:        http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for code.
func StatusFor(code recovery.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err. Causes behind server-side failures are logged and
// never sent to the client.
func writeError(w http.ResponseWriter, log zerolog.Logger, requestID string, err error) {
	e, ok := recovery.AsError(err)
	if !ok {
		e = &recovery.Error{Code: recovery.CodeInternal, Message: "internal error"}
		if errors.Is(err, recovery.ErrEngineNotReady) {
			e = &recovery.Error{Code: recovery.CodeUnavailable, Message: "password reset is temporarily unavailable"}
		}
	}

	status := StatusFor(e.Code)
	if status >= 500 {
		log.Error().Err(err).Str("request_id", requestID).Str("code", string(e.Code)).Msg("password reset request failed")
	}

	body := errorBody{
		Message: e.Message,
		Code:    e.Code,
		Field:   e.Field,
	}
	switch e.Code {
	case recovery.CodeRateLimited:
		body.RetryAfterMinutes = e.RetryAfterMinutes()
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterMinutes*60))
	case recovery.CodeInvalidCode, recovery.CodeTooManyAttempts:
		remaining := e.RemainingAttempts
		body.RemainingAttempts = &remaining
	}
	if len(e.Violations) > 0 {
		body.Violations = make([]string, len(e.Violations))
		for i, v := range e.Violations {
			body.Violations[i] = string(v)
		}
	}

	writeJSON(w, status, body)
}
