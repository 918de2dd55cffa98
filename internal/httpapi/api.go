// Package httpapi is the gateway's HTTP edge: the token endpoints, the
// internal worker API, and the authenticated proxy path to the backends.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cleargate.io/internal/admission"
	"cleargate.io/internal/config"
	"cleargate.io/internal/credpool"
	"cleargate.io/internal/directory"
	"cleargate.io/internal/obs"
	"cleargate.io/internal/proxy"
	"cleargate.io/internal/token"
)

// API wires the gateway components behind one http.Handler.
type API struct {
	mux       *http.ServeMux
	tokens    *token.Service
	directory directory.Store
	table     *admission.Table
	forwarder *proxy.Forwarder
	pool      credpool.Store

	serviceSecret string
	secureCookies bool
	version       string

	loginRateBurst  int
	loginRatePerSec int
}

// New assembles the API from its collaborators.
func New(cfg config.Config, tokens *token.Service, dir directory.Store, table *admission.Table, fw *proxy.Forwarder, pool credpool.Store, version string) *API {
	a := &API{
		mux:             http.NewServeMux(),
		tokens:          tokens,
		directory:       dir,
		table:           table,
		forwarder:       fw,
		pool:            pool,
		serviceSecret:   cfg.ServiceSecret,
		secureCookies:   cfg.SecureCookies,
		version:         version,
		loginRateBurst:  cfg.LoginRateBurst,
		loginRatePerSec: cfg.LoginRatePerSec,
	}

	a.mux.HandleFunc("/health", a.handleHealth)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Handle("/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), a.loginRateBurst, a.loginRatePerSec))
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/verify-session", a.handleVerifySession)

	// Internal worker surface, authenticated by the shared service secret.
	a.mux.HandleFunc("/api/credentials/acquire", a.handleCredentialAcquire)
	a.mux.HandleFunc("/api/credentials/", a.handleCredentialResource)
	a.mux.HandleFunc("/api/tradeline/", a.handleTradeline)

	// Everything else is a proxy candidate.
	a.mux.HandleFunc("/", a.handleGateway)

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = obs.Instrument(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "cleargate",
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
