package credpool

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store in process memory. Selection semantics match
// the Postgres implementation; the mutex is the serialization point that the
// database's row lock provides there. Intended for tests and single-process
// development, never for multi-gateway deployments.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]*Credential
	now   func() time.Time
	// activeCompanies mirrors the company status filter; nil means all active.
	activeCompanies map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		creds: make(map[string]*Credential),
		now:   time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *MemoryStore) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}

// Put inserts or replaces a credential record.
func (s *MemoryStore) Put(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cred
	s.creds[c.ID] = &c
}

// SetCompanyActive marks a company active or inactive for selection.
func (s *MemoryStore) SetCompanyActive(companyID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeCompanies == nil {
		s.activeCompanies = make(map[string]bool)
	}
	s.activeCompanies[companyID] = active
}

func (s *MemoryStore) companyActive(companyID string) bool {
	if s.activeCompanies == nil {
		return true
	}
	active, tracked := s.activeCompanies[companyID]
	return !tracked || active
}

func (s *MemoryStore) Acquire(ctx context.Context, source string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var coldest *Credential
	for _, c := range s.creds {
		if c.Source != source {
			continue
		}
		if c.Status != "valid" && c.Status != "pending" {
			continue
		}
		if !s.companyActive(c.CompanyID) {
			continue
		}
		if coldest == nil || colder(c, coldest) {
			coldest = c
		}
	}
	if coldest == nil {
		return nil, ErrNoCredential
	}
	coldest.UseCount++
	used := s.now()
	coldest.LastUsed = &used
	out := *coldest
	return &out, nil
}

// colder orders by oldest last_used with never-used first, then lowest use_count.
func colder(a, b *Credential) bool {
	switch {
	case a.LastUsed == nil && b.LastUsed != nil:
		return true
	case a.LastUsed != nil && b.LastUsed == nil:
		return false
	case a.LastUsed != nil && b.LastUsed != nil && !a.LastUsed.Equal(*b.LastUsed):
		return a.LastUsed.Before(*b.LastUsed)
	}
	return a.UseCount < b.UseCount
}

func (s *MemoryStore) Get(ctx context.Context, companyID, source string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.CompanyID == companyID && c.Source == source {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ReportSuccess(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = "valid"
	c.SuccessCount++
	c.LastError = ""
	return nil
}

func (s *MemoryStore) ReportFailure(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return ErrNotFound
	}
	c.FailureCount++
	c.LastError = message
	if c.FailureCount >= FailureThreshold {
		c.Status = "invalid"
	} else {
		c.Status = "pending"
	}
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = "pending"
	c.UseCount = 0
	c.SuccessCount = 0
	c.FailureCount = 0
	c.LastUsed = nil
	c.LastError = ""
	return nil
}
