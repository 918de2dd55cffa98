package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"cleargate.io/internal/admission"
	"cleargate.io/internal/token"
)

func backendHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse backend url: %v", err)
	}
	return u.Host
}

func testIdentity() token.Identity {
	return token.Identity{
		UserID:    "user-9",
		Email:     "ops@acme.example",
		Name:      "Acme Ops",
		CompanyID: "co-3",
		Domain:    "portal",
		Role:      "admin",
	}
}

func TestForwardInjectsVerifiedIdentity(t *testing.T) {
	var got http.Header
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	table, err := admission.NewTable([]admission.RouteTarget{
		{Slug: "northstar", Backend: backendHost(t, backend), StripPrefix: true},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	f := New(table)

	req := httptest.NewRequest(http.MethodGet, "/t/northstar/reports", nil)
	// Caller-supplied trust headers must never survive.
	req.Header.Set("X-Gateway-Auth", "true")
	req.Header.Set("X-User-Role", "superadmin")
	req.Header.Set("X-User-Id", "intruder")
	req.Header.Set("X-User-Shoe-Size", "11")
	req.Header.Set("Accept", "application/json")

	rr := httptest.NewRecorder()
	f.Forward(rr, req, table.Resolve("/t/northstar/reports"), testIdentity())

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if gotPath != "/reports" {
		t.Fatalf("prefix not stripped: %s", gotPath)
	}
	if got.Get("X-User-Id") != "user-9" || got.Get("X-User-Role") != "admin" {
		t.Fatalf("identity headers not overwritten: id=%q role=%q", got.Get("X-User-Id"), got.Get("X-User-Role"))
	}
	if got.Get("X-Gateway-Auth") != "true" {
		t.Fatalf("gateway marker missing: %q", got.Get("X-Gateway-Auth"))
	}
	if got.Get("X-Company-Id") != "co-3" || got.Get("X-User-Domain") != "portal" {
		t.Fatalf("company/domain headers wrong: %q %q", got.Get("X-Company-Id"), got.Get("X-User-Domain"))
	}
	if got.Get("X-User-Shoe-Size") != "" {
		t.Fatal("arbitrary caller X-User-* header leaked through")
	}
	if got.Get("Accept") != "application/json" {
		t.Fatal("unrelated headers should pass through")
	}
}

func TestForwardUnreachableBackendIs502(t *testing.T) {
	// A port nothing listens on.
	table, err := admission.NewTable([]admission.RouteTarget{
		{Slug: "deadline", Backend: "127.0.0.1:1"},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	f := New(table)

	req := httptest.NewRequest(http.MethodGet, "/t/deadline/x", nil)
	rr := httptest.NewRecorder()
	f.Forward(rr, req, table.Resolve("/t/deadline/x"), testIdentity())

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["target"] != "deadline" {
		t.Fatalf("502 should name the logical target, got %v", body["target"])
	}
	if strings.Contains(rr.Body.String(), "127.0.0.1") {
		t.Fatal("502 body leaked the backend address")
	}
}

func TestForwardKeepsPathForNonStripTargets(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer backend.Close()

	table, err := admission.NewTable([]admission.RouteTarget{
		{Prefix: "/patch", Backend: backendHost(t, backend)},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	f := New(table)

	req := httptest.NewRequest(http.MethodGet, "/patch/v2/manifest", nil)
	rr := httptest.NewRecorder()
	f.Forward(rr, req, table.Resolve("/patch/v2/manifest"), testIdentity())

	if gotPath != "/patch/v2/manifest" {
		t.Fatalf("path should be forwarded unchanged, got %s", gotPath)
	}
}
