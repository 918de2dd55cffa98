package credpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedPool(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	t1 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	store.Put(Credential{ID: "cred-a", CompanyID: "co-1", Source: "sam_gov", Status: "pending"})
	store.Put(Credential{ID: "cred-b", CompanyID: "co-2", Source: "sam_gov", Status: "pending", LastUsed: &t1, UseCount: 4})
	store.Put(Credential{ID: "cred-c", CompanyID: "co-3", Source: "sam_gov", Status: "pending", LastUsed: &t2, UseCount: 1})
	return store
}

func TestAcquireFairnessOrdering(t *testing.T) {
	store := seedPool(t)
	ctx := context.Background()

	// Never-used sorts first, then oldest last_used.
	first, err := store.Acquire(ctx, "sam_gov")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if first.ID != "cred-a" {
		t.Fatalf("expected never-used credential first, got %s", first.ID)
	}
	if first.UseCount != 1 || first.LastUsed == nil {
		t.Fatalf("borrow must mark the record used: %+v", first)
	}

	second, err := store.Acquire(ctx, "sam_gov")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if second.ID != "cred-b" {
		t.Fatalf("expected oldest last_used next, got %s", second.ID)
	}
}

func TestAcquireTieBreaksByUseCount(t *testing.T) {
	store := NewMemoryStore()
	shared := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	store.Put(Credential{ID: "busy", CompanyID: "co-1", Source: "usa_spend", Status: "valid", LastUsed: &shared, UseCount: 9})
	store.Put(Credential{ID: "idle", CompanyID: "co-2", Source: "usa_spend", Status: "valid", LastUsed: &shared, UseCount: 2})

	cred, err := store.Acquire(context.Background(), "usa_spend")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if cred.ID != "idle" {
		t.Fatalf("tie should break by lowest use_count, got %s", cred.ID)
	}
}

func TestFailureThresholdRetiresCredential(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Credential{ID: "flaky", CompanyID: "co-1", Source: "sam_gov", Status: "valid"})
	ctx := context.Background()

	for i := 0; i < FailureThreshold-1; i++ {
		if err := store.ReportFailure(ctx, "flaky", "timeout"); err != nil {
			t.Fatalf("ReportFailure: %v", err)
		}
		cred, _ := store.Get(ctx, "co-1", "sam_gov")
		if cred.Status != "pending" {
			t.Fatalf("failure %d should leave status pending, got %s", i+1, cred.Status)
		}
	}
	if err := store.ReportFailure(ctx, "flaky", "timeout"); err != nil {
		t.Fatalf("ReportFailure: %v", err)
	}
	cred, _ := store.Get(ctx, "co-1", "sam_gov")
	if cred.Status != "invalid" {
		t.Fatalf("fifth failure should retire the credential, got %s", cred.Status)
	}
	if cred.LastError != "timeout" {
		t.Fatalf("last error not recorded: %q", cred.LastError)
	}

	// Even as the only candidate it must not be selected again.
	if _, err := store.Acquire(ctx, "sam_gov"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("invalid credential must be excluded, got %v", err)
	}

	// The operator reset is the only way back in.
	if err := store.Reset(ctx, "flaky"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, err := store.Acquire(ctx, "sam_gov")
	if err != nil || got.ID != "flaky" {
		t.Fatalf("reset credential should be selectable: %v %v", got, err)
	}
}

func TestReportSuccessRevalidates(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Credential{ID: "cred-1", CompanyID: "co-1", Source: "sam_gov", Status: "pending", LastError: "timeout", FailureCount: 2})
	ctx := context.Background()

	if err := store.ReportSuccess(ctx, "cred-1"); err != nil {
		t.Fatalf("ReportSuccess: %v", err)
	}
	cred, _ := store.Get(ctx, "co-1", "sam_gov")
	if cred.Status != "valid" || cred.SuccessCount != 1 {
		t.Fatalf("unexpected record after success: %+v", cred)
	}
	if cred.LastError != "" {
		t.Fatalf("success should clear last_error, got %q", cred.LastError)
	}
}

func TestInactiveCompanyExcluded(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Credential{ID: "cred-1", CompanyID: "co-1", Source: "sam_gov", Status: "valid"})
	store.SetCompanyActive("co-1", false)

	if _, err := store.Acquire(context.Background(), "sam_gov"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("inactive company's credential must be excluded, got %v", err)
	}
}

func TestConcurrentBorrowersNeverShareACold(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		store.Put(Credential{ID: id, CompanyID: "co-" + id, Source: "sam_gov", Status: "valid"})
	}

	const borrowers = 8
	var wg sync.WaitGroup
	got := make(chan string, borrowers)
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := store.Acquire(context.Background(), "sam_gov")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			got <- cred.ID
		}()
	}
	wg.Wait()
	close(got)

	counts := make(map[string]int)
	for id := range got {
		counts[id]++
	}
	// 8 borrows over 4 credentials: fairness demands exactly two each.
	for id, n := range counts {
		if n != 2 {
			t.Fatalf("uneven spread: credential %s borrowed %d times (%v)", id, n, counts)
		}
	}
}
