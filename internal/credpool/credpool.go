// Package credpool rotates shared third-party credentials across tenants.
// Borrowers always get the coldest usable credential; chronically failing
// records are retired until an operator resets them.
package credpool

import (
	"context"
	"errors"
	"time"
)

// FailureThreshold is the consecutive-failure count at which a credential is
// marked invalid and permanently excluded from selection.
const FailureThreshold = 5

var (
	// ErrNoCredential means no valid or pending credential exists for the
	// source. Callers must treat it as a distinct terminal result, not a
	// transient error, so automation backs off instead of busy-looping.
	ErrNoCredential = errors.New("credpool: no credential available")

	ErrNotFound = errors.New("credpool: credential not found")
)

// Credential is one shared login for one (company, source) pair.
type Credential struct {
	ID           string
	CompanyID    string
	Source       string
	Username     string
	Password     string
	APIKey       string
	Status       string // pending | valid | invalid
	UseCount     int
	SuccessCount int
	FailureCount int
	LastUsed     *time.Time
	LastError    string
}

// Store is the pool's persistence contract. Acquire must be atomic with its
// counter update: two concurrent borrowers may never both receive the same
// coldest credential.
type Store interface {
	// Acquire selects the least-recently-used usable credential for source
	// (never-used first, ties broken by lowest use_count), marks it used,
	// and returns it. Returns ErrNoCredential when the pool is empty.
	Acquire(ctx context.Context, source string) (*Credential, error)
	// Get returns the credential configured for a company/source pair.
	Get(ctx context.Context, companyID, source string) (*Credential, error)
	// ReportSuccess marks the credential working again.
	ReportSuccess(ctx context.Context, id string) error
	// ReportFailure records the error and retires the credential once its
	// failure count reaches FailureThreshold.
	ReportFailure(ctx context.Context, id, message string) error
	// Reset is the operator escape hatch: zero the counters and return the
	// credential to the selectable pool.
	Reset(ctx context.Context, id string) error
}
