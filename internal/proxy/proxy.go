// Package proxy forwards admitted requests to their backend with verified
// identity attached as headers. Backends trust the headers on faith because
// only the gateway can reach them.
package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"cleargate.io/internal/admission"
	"cleargate.io/internal/obs"
	"cleargate.io/internal/token"
)

// Identity headers injected on every forwarded request. Inbound values under
// these names are attacker-controlled and are always stripped first.
const (
	HeaderUserID      = "X-User-Id"
	HeaderUserEmail   = "X-User-Email"
	HeaderUserName    = "X-User-Name"
	HeaderUserRole    = "X-User-Role"
	HeaderUserDomain  = "X-User-Domain"
	HeaderCompanyID   = "X-Company-Id"
	HeaderGatewayAuth = "X-Gateway-Auth"
)

var identityHeaders = []string{
	HeaderUserID, HeaderUserEmail, HeaderUserName, HeaderUserRole,
	HeaderUserDomain, HeaderCompanyID, HeaderGatewayAuth,
}

// Forwarder owns one reverse proxy per route target.
type Forwarder struct {
	table   *admission.Table
	proxies map[*admission.RouteTarget]*httputil.ReverseProxy
}

// New builds the per-target reverse proxies up front; the table is immutable
// for the process lifetime so there is nothing to rebuild later.
func New(table *admission.Table) *Forwarder {
	f := &Forwarder{
		table:   table,
		proxies: make(map[*admission.RouteTarget]*httputil.ReverseProxy),
	}
	for _, target := range table.Targets() {
		f.proxies[target] = f.build(target)
	}
	return f
}

// Forward sends the request to the decided target with the verified identity
// injected. The identity must come from token verification, never from the
// inbound request.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, target *admission.RouteTarget, identity token.Identity) {
	rp, ok := f.proxies[target]
	if !ok {
		// Target outside the table; treat as unreachable rather than guessing.
		writeUpstreamError(w, targetName(target))
		return
	}
	stripInboundIdentity(r.Header)
	r.Header.Set(HeaderUserID, identity.UserID)
	r.Header.Set(HeaderUserEmail, identity.Email)
	r.Header.Set(HeaderUserName, identity.Name)
	r.Header.Set(HeaderUserRole, identity.Role)
	r.Header.Set(HeaderUserDomain, identity.Domain)
	r.Header.Set(HeaderCompanyID, identity.CompanyID)
	r.Header.Set(HeaderGatewayAuth, "true")
	rp.ServeHTTP(w, r)
}

func (f *Forwarder) build(target *admission.RouteTarget) *httputil.ReverseProxy {
	backend := &url.URL{Scheme: "http", Host: target.Backend}
	name := targetName(target)
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(backend)
			pr.Out.URL.Path = f.table.StripPath(target, pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetXForwarded()
			pr.Out.Host = backend.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			// 502 names the logical target only; backend addresses stay
			// inside the gateway.
			obs.ObserveUpstreamError(name)
			obs.LogEntry(map[string]any{
				"level":  "error",
				"msg":    "upstream unreachable",
				"target": name,
				"error":  err.Error(),
			})
			writeUpstreamError(w, name)
		},
	}
}

func stripInboundIdentity(h http.Header) {
	for _, name := range identityHeaders {
		h.Del(name)
	}
	// Any other caller-minted X-User-* header goes too.
	for name := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "X-User-") {
			h.Del(name)
		}
	}
}

func targetName(target *admission.RouteTarget) string {
	if target == nil {
		return "unknown"
	}
	return target.Name()
}

func writeUpstreamError(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":  "backend unavailable",
		"target": name,
	})
}
