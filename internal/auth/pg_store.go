package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgCredentialStore looks up login credentials in Postgres. Admin accounts
// live in the users table and patients carry their own password hash, so a
// login email is resolved against both.
type PgCredentialStore struct {
	pool *pgxpool.Pool
}

func NewPgCredentialStore(pool *pgxpool.Pool) *PgCredentialStore {
	return &PgCredentialStore{pool: pool}
}

func (s *PgCredentialStore) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	cred := &Credential{Role: RoleAdmin}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = $1 AND is_admin = TRUE`,
		email,
	).Scan(&cred.ID, &cred.Email, &cred.PasswordHash)
	if err == nil {
		return cred, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("query user credential: %w", err)
	}

	cred = &Credential{Role: RolePatient}
	err = s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM patients WHERE email = $1`,
		email,
	).Scan(&cred.ID, &cred.Email, &cred.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("query patient credential: %w", err)
	}
	return cred, nil
}
