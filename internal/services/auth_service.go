package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/whenwhy/internal/models"
)

type AuthStore interface {
	FindResearcherByEmail(ctx context.Context, email string) (*models.Researcher, error)
	AddResearcher(ctx context.Context, r *models.Researcher) error
}

type TokenSigner func(uid, email string, ttl time.Duration) (string, error)

// AuthService manages researcher accounts. Participants never authenticate.
type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token        string
	ResearcherID string
}

func NewAuthService(store AuthStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  ttl,
	}
}

// Register creates a researcher account. It does not sign a token; accounts
// are provisioned from the command line.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.Researcher, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	existing, err := s.store.FindResearcherByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	r := &models.Researcher{ID: s.idGen("r", 7), Email: email, PassHash: hash, CreatedAt: s.now()}
	if err := s.store.AddResearcher(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindResearcherByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ResearcherID: u.ID}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
