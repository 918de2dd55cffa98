// Package directory is the gateway's boundary to the user and company
// records it authenticates against. The gateway reads identities here at
// login and refresh; it owns none of the records.
package directory

import "time"

// User is an account in the directory. PasswordHash never leaves this
// package except through VerifyPassword.
type User struct {
	ID           string
	Email        string
	Name         string
	CompanyID    string
	PasswordHash string
	Domain       string
	Role         string
	Products     []string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Company is a tenant owning users and third-party credentials.
type Company struct {
	ID        string
	Name      string
	Status    string
	Products  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
