package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	tokens map[string]*sessionauth.Principal
	err    error
	calls  int
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (*sessionauth.Principal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.tokens[token]
	if !ok {
		return nil, &sessionauth.AuthError{
			Kind:   sessionauth.KindTokenRevoked,
			Err:    sessionauth.ErrTokenRevoked,
			Action: sessionauth.ActionLoginRequired,
		}
	}
	return p, nil
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := sessionauth.PrincipalFromContext(r.Context())
		if !ok {
			fmt.Fprint(w, "anonymous")
			return
		}
		fmt.Fprint(w, p.SubjectID)
	})
}

func serve(h http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "203.0.113.5:41234"
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestGuardAttachesPrincipal(t *testing.T) {
	auth := &fakeAuthenticator{tokens: map[string]*sessionauth.Principal{
		"good": {SubjectID: "u-1"},
	}}
	h := Require(auth)(echoPrincipal())

	rec := serve(h, http.MethodGet, "/me", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", rec.Body.String())

	rec = serve(h, http.MethodGet, "/me", "bearer good")
	assert.Equal(t, http.StatusOK, rec.Code, "scheme is case-insensitive")
}

func TestGuardMissingTokenIs401(t *testing.T) {
	auth := &fakeAuthenticator{}
	h := Require(auth)(echoPrincipal())

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer    "} {
		rec := serve(h, http.MethodGet, "/me", header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, `Bearer realm="sessionauth"`, rec.Header().Get("WWW-Authenticate"))
		body := decodeBody(t, rec)
		assert.Equal(t, "LOGIN_REQUIRED", body.Action)
	}
	assert.Zero(t, auth.calls)
}

func TestGuardRevokedToken(t *testing.T) {
	h := Require(&fakeAuthenticator{})(echoPrincipal())

	rec := serve(h, http.MethodGet, "/me", "Bearer unknown")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error_description="token revoked"`)
	body := decodeBody(t, rec)
	assert.Equal(t, "token revoked", body.Error)
}

func TestGuardPolicies(t *testing.T) {
	auth := &fakeAuthenticator{tokens: map[string]*sessionauth.Principal{
		"good": {SubjectID: "u-1"},
	}}
	policies := Policies{
		"POST /login":   PolicyPublic,
		"/healthz":      PolicyPublic,
		"/docs/*":       PolicyPublic,
		"GET /feed":     PolicyOptional,
		"/docs/admin/*": PolicyAuthenticated,
	}
	h := Guard(auth, policies)(echoPrincipal())

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/login", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/login", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/docs/intro", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/docs/admin/keys", "").Code)

	rec := serve(h, http.MethodGet, "/feed", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	rec = serve(h, http.MethodGet, "/feed", "Bearer good")
	assert.Equal(t, "u-1", rec.Body.String())

	// A bad token on an optional route is still rejected.
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/feed", "Bearer bad").Code)
}

func TestGuardPropagatesClientIP(t *testing.T) {
	var seen string
	h := Guard(nil, Policies{"/x": PolicyPublic})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := sessionauth.PrincipalFromContext(r.Context())
		assert.Nil(t, p)
		seen = ClientIP(r)
	}))
	serve(h, http.MethodGet, "/x", "")
	assert.Equal(t, "203.0.113.5", seen)
}

func TestWriteErrorMapping(t *testing.T) {
	locked := &sessionauth.AuthError{
		Kind:       sessionauth.KindLockedOut,
		Err:        sessionauth.ErrLockedOut,
		Action:     sessionauth.ActionRetryLater,
		RetryAfter: 90*time.Second + 200*time.Millisecond,
	}
	store := &sessionauth.AuthError{
		Kind:      sessionauth.KindStoreUnavailable,
		Err:       sessionauth.ErrStoreUnavailable,
		Detail:    "dial tcp 10.0.0.3:6379: connection refused",
		Action:    sessionauth.ActionRetryLater,
		Retryable: true,
	}
	expired := &sessionauth.AuthError{
		Kind:   sessionauth.KindTokenExpired,
		Err:    sessionauth.ErrTokenExpired,
		Action: sessionauth.ActionRefreshToken,
	}
	invalid := &sessionauth.AuthError{
		Kind:   sessionauth.KindInvalidRequest,
		Err:    sessionauth.ErrInvalidRequest,
		Action: sessionauth.ActionFixRequest,
		Fields: map[string]string{"email": "required"},
	}

	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
		action     string
	}{
		{"locked out", locked, http.StatusTooManyRequests, "91", "RETRY_LATER"},
		{"store down", store, http.StatusServiceUnavailable, "5", "RETRY_LATER"},
		{"expired", expired, http.StatusUnauthorized, "", "REFRESH_TOKEN"},
		{"invalid request", invalid, http.StatusBadRequest, "", "FIX_REQUEST"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.retryAfter, rec.Header().Get("Retry-After"))
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			body := decodeBody(t, rec)
			assert.Equal(t, tc.action, body.Action)
			assert.NotContains(t, body.Error, "10.0.0.3")
		})
	}

	rec := httptest.NewRecorder()
	WriteError(rec, invalid)
	assert.Equal(t, map[string]string{"email": "required"}, decodeBody(t, rec).Fields)
}
