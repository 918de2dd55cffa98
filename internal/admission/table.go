// Package admission decides, per request, whether a verified identity may
// reach a backend and which backend that is.
package admission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
)

// RouteTarget maps a path prefix or tradeline slug to a backend address and
// the minimum privilege required to reach it. Loaded once at startup and
// immutable for the process lifetime.
type RouteTarget struct {
	// Slug names the target under /t/<slug>/...; empty for prefix routes.
	Slug string `json:"slug,omitempty"`
	// Prefix is the static path prefix for non-slug routes, e.g. "/dash".
	Prefix string `json:"prefix,omitempty"`
	// Backend is the host:port the proxy forwards to.
	Backend string `json:"backend"`
	// StripPrefix removes the matched prefix (or /t/<slug>) before forwarding.
	StripPrefix bool `json:"strip_prefix"`
	// RequireAdmin gates the route to engine-domain or superadmin identities.
	RequireAdmin bool `json:"require_admin"`
	// RequireProduct gates the route to identities entitled to the product.
	RequireProduct string `json:"require_product,omitempty"`
}

// Name is the logical identifier used in logs, metrics and 502 bodies.
// It never exposes the backend address.
func (t RouteTarget) Name() string {
	if t.Slug != "" {
		return t.Slug
	}
	return t.Prefix
}

// Table resolves request paths to route targets.
type Table struct {
	bySlug   map[string]*RouteTarget
	byPrefix []*RouteTarget // sorted longest prefix first
}

// LoadTable reads and validates the JSON route table at path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	var targets []RouteTarget
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode route table: %w", err)
	}
	return NewTable(targets)
}

// NewTable validates targets and builds the lookup structures. Validation is
// strict on purpose: a malformed table should stop the process at startup,
// not surface as a runtime routing surprise.
func NewTable(targets []RouteTarget) (*Table, error) {
	table := &Table{bySlug: make(map[string]*RouteTarget, len(targets))}
	for i := range targets {
		t := &targets[i]
		if (t.Slug == "") == (t.Prefix == "") {
			return nil, fmt.Errorf("route %q: exactly one of slug or prefix is required", t.Name())
		}
		if t.Prefix != "" && !strings.HasPrefix(t.Prefix, "/") {
			return nil, fmt.Errorf("route %q: prefix must start with /", t.Prefix)
		}
		if _, _, err := net.SplitHostPort(t.Backend); err != nil {
			return nil, fmt.Errorf("route %q: backend must be host:port: %w", t.Name(), err)
		}
		if t.Slug != "" {
			if _, dup := table.bySlug[t.Slug]; dup {
				return nil, fmt.Errorf("route %q: duplicate slug", t.Slug)
			}
			table.bySlug[t.Slug] = t
			continue
		}
		table.byPrefix = append(table.byPrefix, t)
	}
	sort.Slice(table.byPrefix, func(i, j int) bool {
		return len(table.byPrefix[i].Prefix) > len(table.byPrefix[j].Prefix)
	})
	for i := 1; i < len(table.byPrefix); i++ {
		if table.byPrefix[i].Prefix == table.byPrefix[i-1].Prefix {
			return nil, fmt.Errorf("route %q: duplicate prefix", table.byPrefix[i].Prefix)
		}
	}
	return table, nil
}

// Targets returns every configured target, for proxy construction.
func (t *Table) Targets() []*RouteTarget {
	out := make([]*RouteTarget, 0, len(t.bySlug)+len(t.byPrefix))
	for _, target := range t.bySlug {
		out = append(out, target)
	}
	out = append(out, t.byPrefix...)
	return out
}

// Resolve maps a request path to its target. Slug routes live under
// /t/<slug>/...; everything else resolves by longest matching prefix.
// A miss returns nil: unknown destinations are a routing error, never an
// authorization one.
func (t *Table) Resolve(path string) *RouteTarget {
	if slug, ok := slugFromPath(path); ok {
		return t.bySlug[slug]
	}
	for _, target := range t.byPrefix {
		if path == target.Prefix || strings.HasPrefix(path, target.Prefix+"/") {
			return target
		}
	}
	return nil
}

// StripPath returns the path the backend should see for a target.
func (t *Table) StripPath(target *RouteTarget, path string) string {
	if target == nil || !target.StripPrefix {
		return path
	}
	prefix := target.Prefix
	if target.Slug != "" {
		prefix = "/t/" + target.Slug
	}
	stripped := strings.TrimPrefix(path, prefix)
	if stripped == "" {
		return "/"
	}
	return stripped
}

func slugFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, "/t/") {
		return "", false
	}
	rest := strings.TrimPrefix(path, "/t/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
