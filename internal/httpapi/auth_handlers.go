package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"cleargate.io/internal/audit"
	"cleargate.io/internal/directory"
	"cleargate.io/internal/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Valid bool            `json:"valid"`
	User  *token.Identity `json:"user,omitempty"`
}

func identityFor(u *directory.User) token.Identity {
	return token.Identity{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CompanyID: u.CompanyID,
		Domain:    u.Domain,
		Role:      u.Role,
		Products:  u.Products,
	}
}

// lookupIdentity re-reads the directory on the refresh path so role and
// entitlement changes land in the re-issued pair.
func (a *API) lookupIdentity(ctx context.Context, userID string) (token.Identity, error) {
	user, err := a.directory.FindUser(ctx, userID)
	if err != nil {
		return token.Identity{}, err
	}
	if user.Status != "active" {
		return token.Identity{}, directory.ErrNotFound
	}
	return identityFor(user), nil
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	// Every failure below answers identically: no oracle on which part failed.
	user, err := a.directory.FindUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			a.rejectLogin(w, r, email)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if user.Status != "active" || directory.VerifyPassword(user.PasswordHash, req.Password) != nil {
		a.rejectLogin(w, r, email)
		return
	}

	identity := identityFor(user)
	pair, err := a.tokens.Issue(identity)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return
	}
	a.setTokenCookies(w, pair)

	ctx := token.ContextWithIdentity(r.Context(), identity)
	_ = audit.LogEvent(ctx, "auth.login.success", map[string]any{
		"email": identity.Email,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Valid: true, User: &identity})
}

func (a *API) rejectLogin(w http.ResponseWriter, r *http.Request, email string) {
	_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
		"email": email,
	})
	writeError(w, r, http.StatusUnauthorized, "invalid credentials")
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// Stateless tokens: logout is clearing client-side storage.
	a.clearTokenCookies(w)
	ctx := r.Context()
	if identity, err := a.tokens.Verify(cookieValue(r, accessCookie)); err == nil {
		ctx = token.ContextWithIdentity(ctx, *identity)
	}
	_ = audit.LogEvent(ctx, "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleVerifySession lets other services spot-check a token out of band.
// It never distinguishes failure causes and never writes cookies.
func (a *API) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	raw := cookieValue(r, accessCookie)
	if raw == "" {
		raw = bearerToken(r)
	}
	identity, err := a.tokens.Verify(raw)
	if err != nil {
		writeJSON(w, http.StatusOK, sessionResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Valid: true, User: identity})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
