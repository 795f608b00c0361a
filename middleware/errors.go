package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/sessionauth"
)

// storeRetryAfter is advertised when the session store is unreachable.
const storeRetryAfter = 5 * time.Second

// ErrorBody is the JSON document written by [WriteError].
type ErrorBody struct {
	Error  string            `json:"error"`
	Action string            `json:"action,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, sessionauth.ErrLockedOut):
		return http.StatusTooManyRequests
	case errors.Is(err, sessionauth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, sessionauth.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, sessionauth.ErrInvalidCredentials),
		errors.Is(err, sessionauth.ErrNoToken),
		errors.Is(err, sessionauth.ErrTokenExpired),
		errors.Is(err, sessionauth.ErrTokenMalformed),
		errors.Is(err, sessionauth.ErrTokenRevoked),
		errors.Is(err, sessionauth.ErrTokenNotYetValid):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as JSON. Internal detail never reaches the
// client; only the public message, the action hint and field errors do.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: "internal error"}

	ae, ok := sessionauth.AsAuthError(err)
	switch {
	case ok:
		body.Error = ae.PublicMessage()
		body.Action = string(ae.Action)
		body.Fields = ae.Fields
	case status != http.StatusInternalServerError:
		body.Error = err.Error()
		body.Action = string(sessionauth.ActionLoginRequired)
	}

	h := w.Header()
	switch status {
	case http.StatusTooManyRequests:
		retry := time.Duration(0)
		if ok {
			retry = ae.RetryAfter
		}
		h.Set("Retry-After", retryAfterSeconds(retry))
	case http.StatusServiceUnavailable:
		h.Set("Retry-After", retryAfterSeconds(storeRetryAfter))
	case http.StatusUnauthorized:
		h.Set("WWW-Authenticate", wwwAuthenticate(err))
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// wwwAuthenticate follows RFC 6750 section 3.
func wwwAuthenticate(err error) string {
	switch {
	case errors.Is(err, sessionauth.ErrNoToken), errors.Is(err, sessionauth.ErrInvalidCredentials):
		return `Bearer realm="sessionauth"`
	case errors.Is(err, sessionauth.ErrTokenExpired):
		return `Bearer realm="sessionauth", error="invalid_token", error_description="token expired"`
	case errors.Is(err, sessionauth.ErrTokenRevoked):
		return `Bearer realm="sessionauth", error="invalid_token", error_description="token revoked"`
	default:
		return `Bearer realm="sessionauth", error="invalid_token"`
	}
}
