package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"cleargate.io/internal/audit"
	"cleargate.io/internal/obs"
	"cleargate.io/internal/token"
)

// handleGateway is the proxy path: authenticate from cookies, admit against
// the route table, then forward with verified identity headers.
func (a *API) handleGateway(w http.ResponseWriter, r *http.Request) {
	identity, pair, err := a.tokens.RefreshIfNeeded(
		r.Context(),
		cookieValue(r, accessCookie),
		cookieValue(r, refreshCookie),
		a.lookupIdentity,
	)
	if err != nil && !errors.Is(err, token.ErrInvalidToken) {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	decision := a.table.Decide(identity, r.URL.Path)
	obs.ObserveAdmission(decision.Outcome())

	ctx := r.Context()
	if identity != nil {
		ctx = token.ContextWithIdentity(ctx, *identity)
		r = r.WithContext(ctx)
	}

	if !decision.Admitted {
		a.rejectGateway(w, r, decision.Status)
		return
	}

	// Rotated cookies must be on the response before the backend round-trip
	// starts, so a concurrent client reuse of the old refresh token cannot
	// race the rotation.
	if pair != nil {
		a.setTokenCookies(w, *pair)
		obs.ObserveTokenRefresh()
		_ = audit.LogEvent(ctx, "auth.token.refreshed", nil)
	}

	_ = audit.LogEvent(ctx, "admission.admitted", map[string]any{
		"path":   r.URL.Path,
		"target": decision.Target.Name(),
	})
	a.forwarder.Forward(w, r, decision.Target, *identity)
}

func (a *API) rejectGateway(w http.ResponseWriter, r *http.Request, status int) {
	switch status {
	case http.StatusNotFound:
		// Fixed body, no request id: the response must be byte-identical
		// whether or not the caller is authenticated, so an unknown slug
		// cannot confirm or deny a tenant's existence.
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	case http.StatusForbidden:
		_ = audit.LogEvent(r.Context(), "admission.denied", map[string]any{
			"path": r.URL.Path,
		})
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		_ = audit.LogEvent(r.Context(), "admission.unauthenticated", map[string]any{
			"path": r.URL.Path,
		})
		if wantsJSON(r) {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		http.Redirect(w, r, "/auth/login", http.StatusFound)
	}
}

// wantsJSON picks the 401 shape: API callers get a status code, browsers a
// redirect to the login page.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json")
}
