package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"cleargate.io/internal/admission"
	"cleargate.io/internal/config"
	"cleargate.io/internal/credpool"
	"cleargate.io/internal/directory"
	"cleargate.io/internal/proxy"
	"cleargate.io/internal/token"
)

// fakeDirectory is an in-memory directory.Store for edge tests.
type fakeDirectory struct {
	users     map[string]*directory.User // by id
	bySource  map[string][]directory.Company
	lookupErr error
}

var _ directory.Store = (*fakeDirectory)(nil)

func (f *fakeDirectory) FindUser(ctx context.Context, id string) (*directory.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeDirectory) FindUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (f *fakeDirectory) FindCompany(ctx context.Context, id string) (*directory.Company, error) {
	return nil, directory.ErrNotFound
}

func (f *fakeDirectory) CompaniesBySource(ctx context.Context, source string) ([]directory.Company, error) {
	return f.bySource[source], nil
}

const (
	testPassword      = "correct-horse-battery"
	testServiceSecret = "worker-shared-secret"
)

func seedDirectory(t *testing.T) *fakeDirectory {
	t.Helper()
	hash, err := directory.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &fakeDirectory{
		users: map[string]*directory.User{
			"user-1": {
				ID: "user-1", Email: "ops@acme.example", Name: "Acme Ops",
				CompanyID: "co-1", PasswordHash: hash, Domain: "portal",
				Role: "user", Products: []string{"tradelines"}, Status: "active",
			},
			"user-root": {
				ID: "user-root", Email: "root@cleargate.example", Name: "Root",
				CompanyID: "co-0", PasswordHash: hash, Domain: "engine",
				Role: "superadmin", Status: "active",
			},
			"user-off": {
				ID: "user-off", Email: "gone@acme.example", Name: "Former",
				CompanyID: "co-1", PasswordHash: hash, Domain: "portal",
				Role: "user", Status: "disabled",
			},
		},
		bySource: map[string][]directory.Company{
			"sam_gov": {
				{ID: "co-1", Name: "Acme", Status: "active"},
				{ID: "co-2", Name: "Northstar", Status: "active"},
			},
		},
	}
}

type testEnv struct {
	api     *API
	handler http.Handler
	backend *httptest.Server
	dir     *fakeDirectory
	pool    *credpool.MemoryStore
	tokens  *token.Service
	// backendSeen records the last proxied request's headers and path.
	backendSeen *http.Request
}

func newTestEnv(t *testing.T, tokens *token.Service) *testEnv {
	t.Helper()
	env := &testEnv{}

	env.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clone := r.Clone(context.Background())
		env.backendSeen = clone
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("backend ok"))
	}))
	t.Cleanup(env.backend.Close)

	u, err := url.Parse(env.backend.URL)
	if err != nil {
		t.Fatalf("parse backend url: %v", err)
	}

	table, err := admission.NewTable([]admission.RouteTarget{
		{Slug: "northstar", Backend: u.Host, StripPrefix: true, RequireProduct: "tradelines"},
		{Prefix: "/dash", Backend: u.Host, StripPrefix: true},
		{Prefix: "/patch", Backend: u.Host, RequireAdmin: true},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	if tokens == nil {
		tokens, err = token.NewService("test-signing-secret")
		if err != nil {
			t.Fatalf("NewService: %v", err)
		}
	}
	env.tokens = tokens
	env.dir = seedDirectory(t)
	env.pool = credpool.NewMemoryStore()

	cfg := config.Config{
		ServiceSecret:   testServiceSecret,
		SecureCookies:   false,
		LoginRateBurst:  100,
		LoginRatePerSec: 100,
	}
	env.api = New(cfg, tokens, env.dir, table, proxy.New(table), env.pool, "test")
	env.handler = env.api.Handler()
	return env
}

func cookiesByName(resp *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range resp.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}
