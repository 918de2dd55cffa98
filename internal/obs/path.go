package obs

import "strings"

// CanonicalPath collapses per-entity path segments so metric labels stay
// low-cardinality. Unknown paths are returned as-is minus any query string.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "credentials" && parts[2] == "acquire":
		return "/api/credentials/acquire"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "credentials" && parts[3] == "outcome":
		return "/api/credentials/:id/outcome"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "credentials" && parts[3] == "reset":
		return "/api/credentials/:id/reset"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "credentials":
		return "/api/credentials/:company/:source"
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "tradeline" && parts[3] == "companies":
		return "/api/tradeline/:source/companies"
	case len(parts) >= 2 && parts[0] == "t":
		return "/t/:slug"
	}
	return path
}
