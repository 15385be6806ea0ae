package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Credential is a stored login identity: either an admin user or a patient.
type Credential struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
}

var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore resolves login emails to stored credentials.
type CredentialStore interface {
	// FindByEmail checks admin users first, then patients, since the two
	// principal kinds live in separate tables.
	FindByEmail(ctx context.Context, email string) (*Credential, error)
}

type Service struct {
	store  CredentialStore
	tokens *TokenManager
	log    *zap.Logger
}

func NewService(store CredentialStore, tokens *TokenManager, log *zap.Logger) *Service {
	return &Service{store: store, tokens: tokens, log: log}
}

type LoginResult struct {
	Token     string
	Principal Principal
	ExpiresIn time.Duration
}

// Login exchanges an email/password pair for a signed session token. The
// same generic error covers unknown email and wrong password so the endpoint
// does not leak which addresses exist.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	cred, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if !CheckPassword(cred.PasswordHash, password) {
		s.log.Info("failed login attempt", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(cred.ID, cred.Role)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		Principal: Principal{Role: cred.Role, ID: cred.ID},
		ExpiresIn: s.tokens.TTL(),
	}, nil
}
