package directory

import "context"

// Store describes the directory reads the gateway depends on.
type Store interface {
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindCompany(ctx context.Context, id string) (*Company, error)
	// CompaniesBySource lists active companies subscribed to an external
	// source, for the tradeline worker API.
	CompaniesBySource(ctx context.Context, source string) ([]Company, error)
}
