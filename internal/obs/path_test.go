package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/health":                           "/health",
		"/api/credentials/acme/sam_gov":     "/api/credentials/:company/:source",
		"/api/credentials/acquire":          "/api/credentials/acquire",
		"/api/credentials/abc123/outcome":   "/api/credentials/:id/outcome",
		"/api/credentials/abc123/reset":     "/api/credentials/:id/reset",
		"/api/tradeline/sam_gov/companies":  "/api/tradeline/:source/companies",
		"/t/northstar/reports":              "/t/:slug",
		"/t/northstar":                      "/t/:slug",
		"/api/verify-session":               "/api/verify-session",
		"/api/verify-session?token=ignored": "/api/verify-session",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
