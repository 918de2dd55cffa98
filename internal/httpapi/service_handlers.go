package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"cleargate.io/internal/audit"
	"cleargate.io/internal/credpool"
	"cleargate.io/internal/directory"
	"cleargate.io/internal/obs"
)

// ServiceKeyHeader authenticates backend workers on the internal API. These
// callers hold the shared service secret, not user tokens.
const ServiceKeyHeader = "X-Service-Key"

func (a *API) requireServiceSecret(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get(ServiceKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(a.serviceSecret)) != 1 {
		_ = audit.LogEvent(r.Context(), "service.auth.failed", map[string]any{
			"path": r.URL.Path,
		})
		writeError(w, r, http.StatusUnauthorized, "invalid service key")
		return false
	}
	return true
}

type credentialResponse struct {
	Username string `json:"username"`
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

type acquireRequest struct {
	Source string `json:"source"`
}

type acquireResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	credentialResponse
}

type outcomeRequest struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleCredentialResource serves /api/credentials/{companyId}/{source} and
// the worker verbs /api/credentials/{id}/outcome and /{id}/reset.
func (a *API) handleCredentialResource(w http.ResponseWriter, r *http.Request) {
	if !a.requireServiceSecret(w, r) {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/credentials/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	switch parts[1] {
	case "outcome":
		a.reportCredentialOutcome(w, r, parts[0])
	case "reset":
		a.resetCredential(w, r, parts[0])
	default:
		a.getCredential(w, r, parts[0], parts[1])
	}
}

func (a *API) getCredential(w http.ResponseWriter, r *http.Request, companyID, source string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	cred, err := a.pool.Get(r.Context(), companyID, source)
	if err != nil {
		if errors.Is(err, credpool.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "credential not configured")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "credential.read", map[string]any{
		"company_id": companyID,
		"source":     source,
	})
	writeJSON(w, http.StatusOK, credentialResponse{
		Username: cred.Username,
		Password: cred.Password,
		APIKey:   cred.APIKey,
	})
}

func (a *API) handleCredentialAcquire(w http.ResponseWriter, r *http.Request) {
	if !a.requireServiceSecret(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req acquireRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		writeError(w, r, http.StatusBadRequest, "source is required")
		return
	}

	cred, err := a.pool.Acquire(r.Context(), source)
	if err != nil {
		if errors.Is(err, credpool.ErrNoCredential) {
			// Terminal for the worker: back off, do not retry in a loop.
			obs.ObserveCredentialBorrow(source, "empty")
			writeError(w, r, http.StatusNotFound, "no credential available")
			return
		}
		obs.ObserveCredentialBorrow(source, "error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	obs.ObserveCredentialBorrow(source, "ok")
	_ = audit.LogEvent(r.Context(), "credential.borrowed", map[string]any{
		"credential_id": cred.ID,
		"company_id":    cred.CompanyID,
		"source":        source,
	})
	writeJSON(w, http.StatusOK, acquireResponse{
		ID:        cred.ID,
		CompanyID: cred.CompanyID,
		credentialResponse: credentialResponse{
			Username: cred.Username,
			Password: cred.Password,
			APIKey:   cred.APIKey,
		},
	})
}

func (a *API) reportCredentialOutcome(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req outcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var err error
	if req.OK {
		err = a.pool.ReportSuccess(r.Context(), id)
	} else {
		err = a.pool.ReportFailure(r.Context(), id, req.Error)
	}
	if err != nil {
		if errors.Is(err, credpool.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "credential not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "credential.outcome", map[string]any{
		"credential_id": id,
		"ok":            req.OK,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) resetCredential(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.pool.Reset(r.Context(), id); err != nil {
		if errors.Is(err, credpool.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "credential not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "credential.reset", map[string]any{
		"credential_id": id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type companySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleTradeline serves /api/tradeline/{source}/companies.
func (a *API) handleTradeline(w http.ResponseWriter, r *http.Request) {
	if !a.requireServiceSecret(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tradeline/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "companies" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	companies, err := a.directory.CompaniesBySource(r.Context(), parts[0])
	if err != nil {
		if errors.Is(err, directory.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "invalid source")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]companySummary, 0, len(companies))
	for _, c := range companies {
		out = append(out, companySummary{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}
