package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 16

var policies = middleware.Policies{
	"POST /login":   middleware.PolicyPublic,
	"POST /refresh": middleware.PolicyPublic,
	"/healthz":      middleware.PolicyPublic,
	"/metrics":      middleware.PolicyPublic,
}

type server struct {
	engine   *sessionauth.Engine
	logger   zerolog.Logger
	gatherer promclient.Gatherer
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshTokenID string `json:"refresh_token_id"`
}

type identityResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

type loginResponse struct {
	Identity identityResponse      `json:"identity"`
	Tokens   sessionauth.TokenPair `json:"tokens"`
}

type principalResponse struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.Recoverer,
		requestLogger(s.logger),
		middleware.Guard(s.engine, policies),
	)

	r.Post("/login", s.login)
	r.Post("/refresh", s.refresh)
	r.Post("/logout", s.logout)
	r.Post("/logout-all", s.logoutAll)
	r.Get("/me", s.me)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Login(r.Context(), sessionauth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Identity: identityResponse{
			ID:       res.Identity.ID,
			Email:    res.Identity.Email,
			Username: res.Identity.Username,
			Role:     res.Identity.Role,
		},
		Tokens: res.Tokens,
	})
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	principal, _ := sessionauth.PrincipalFromContext(r.Context())
	token, _ := middleware.BearerToken(r)

	var req logoutRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	err := s.engine.Logout(r.Context(), sessionauth.LogoutRequest{
		SubjectID:      principal.SubjectID,
		AccessToken:    token,
		RefreshTokenID: req.RefreshTokenID,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) logoutAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := sessionauth.PrincipalFromContext(r.Context())
	if err := s.engine.LogoutAll(r.Context(), principal.SubjectID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := sessionauth.PrincipalFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, principalResponse{
		SubjectID: p.SubjectID,
		Email:     p.Email,
		Username:  p.Username,
		Role:      p.Role,
		TokenID:   p.TokenID,
		ExpiresAt: p.ExpiresAt,
	})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	if !h.Available {
		s.logger.Warn().Err(h.Err).Msg("health check failed")
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"store_latency": h.Latency.String(),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "malformed request body"})
	return false
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ev := logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				ev = logger.Error()
			}
			ev.Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
