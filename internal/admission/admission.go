package admission

import (
	"net/http"

	"cleargate.io/internal/token"
)

// Decision is the terminal state of one admission check.
type Decision struct {
	Admitted bool
	// Status is the HTTP status to return when not admitted: 401, 403 or 404.
	Status int
	Target *RouteTarget
}

// Outcome labels the decision for metrics and audit.
func (d Decision) Outcome() string {
	switch {
	case d.Admitted:
		return "admitted"
	case d.Status == http.StatusNotFound:
		return "unknown_route"
	case d.Status == http.StatusUnauthorized:
		return "unauthenticated"
	default:
		return "denied"
	}
}

// Decide resolves the path and gates it against the identity. Route
// existence is checked first so an unknown slug yields 404 whether or not
// the caller is authenticated; anything else would let unauthenticated
// callers enumerate which tenants exist.
func (t *Table) Decide(identity *token.Identity, path string) Decision {
	target := t.Resolve(path)
	if target == nil {
		return Decision{Status: http.StatusNotFound}
	}
	if identity == nil {
		return Decision{Status: http.StatusUnauthorized}
	}
	// Superadmin overrides every domain and product gate.
	if identity.IsSuperadmin() {
		return Decision{Admitted: true, Target: target}
	}
	if target.RequireAdmin && !identity.IsEngineAdmin() {
		return Decision{Status: http.StatusForbidden, Target: target}
	}
	if target.RequireProduct != "" && !identity.HasProduct(target.RequireProduct) {
		return Decision{Status: http.StatusForbidden, Target: target}
	}
	return Decision{Admitted: true, Target: target}
}
