package credpool

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store against PostgreSQL. The pool's counters are the
// only cross-process mutable state in the gateway, so nothing is cached in
// memory: every gateway process observes the same rows.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const credentialColumns = `id, company_id, source, username, password, api_key,
	status, use_count, success_count, failure_count, last_used, last_error`

// Acquire runs selection and the use_count/last_used update as one statement.
// FOR UPDATE SKIP LOCKED serializes concurrent borrowers without letting two
// of them pick the same coldest row.
func (s *PGStore) Acquire(ctx context.Context, source string) (*Credential, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrNoCredential
	}
	row := s.db.QueryRowContext(ctx, `
		update credentials set
			use_count = use_count + 1,
			last_used = now()
		where id = (
			select cr.id from credentials cr
			join companies c on c.id = cr.company_id
			where cr.source = $1
			  and cr.status in ('valid', 'pending')
			  and c.status = 'active'
			order by cr.last_used asc nulls first, cr.use_count asc
			limit 1
			for update of cr skip locked
		)
		returning `+credentialColumns, source)
	cred, err := scanCredential(row)
	if err == ErrNotFound {
		return nil, ErrNoCredential
	}
	return cred, err
}

func (s *PGStore) Get(ctx context.Context, companyID, source string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from credentials where company_id=$1 and source=$2`,
		companyID, source)
	return scanCredential(row)
}

func (s *PGStore) ReportSuccess(ctx context.Context, id string) error {
	return s.exec(ctx, `
		update credentials set
			status = 'valid',
			success_count = success_count + 1,
			last_error = null,
			updated_at = now()
		where id = $1`, id)
}

// ReportFailure flips status to invalid exactly when the incremented count
// reaches the threshold; the CASE keeps the check and the increment in one
// atomic statement.
func (s *PGStore) ReportFailure(ctx context.Context, id, message string) error {
	return s.exec(ctx, `
		update credentials set
			failure_count = failure_count + 1,
			last_error = $2,
			status = case when failure_count + 1 >= $3 then 'invalid' else 'pending' end,
			updated_at = now()
		where id = $1`, id, message, FailureThreshold)
}

func (s *PGStore) Reset(ctx context.Context, id string) error {
	return s.exec(ctx, `
		update credentials set
			status = 'pending',
			use_count = 0,
			success_count = 0,
			failure_count = 0,
			last_used = null,
			last_error = null,
			updated_at = now()
		where id = $1`, id)
}

func (s *PGStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCredential(row *sql.Row) (*Credential, error) {
	var (
		c         Credential
		lastUsed  sql.NullTime
		lastError sql.NullString
	)
	err := row.Scan(&c.ID, &c.CompanyID, &c.Source, &c.Username, &c.Password, &c.APIKey,
		&c.Status, &c.UseCount, &c.SuccessCount, &c.FailureCount, &lastUsed, &lastError)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		c.LastUsed = &t
	}
	c.LastError = lastError.String
	return &c, nil
}
