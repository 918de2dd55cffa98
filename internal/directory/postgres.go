package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store against PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, email, name, company_id, password_hash, domain, role, products, status, created_at, updated_at`

func (s *PGStore) FindUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=$1`, email)
	return scanUser(row)
}

func (s *PGStore) FindCompany(ctx context.Context, id string) (*Company, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, status, products, created_at, updated_at from companies where id=$1`, id)
	var (
		c        Company
		products []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Status, &products, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(products, &c.Products)
	return &c, nil
}

func (s *PGStore) CompaniesBySource(ctx context.Context, source string) ([]Company, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.name, c.status, c.products, c.created_at, c.updated_at
		from companies c
		join credentials cr on cr.company_id = c.id
		where cr.source = $1 and c.status = 'active'
		order by c.name asc`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Company
	for rows.Next() {
		var (
			c        Company
			products []byte
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &products, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(products, &c.Products)
		res = append(res, c)
	}
	return res, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u        User
		products []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CompanyID, &u.PasswordHash,
		&u.Domain, &u.Role, &products, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(products, &u.Products)
	return &u, nil
}
