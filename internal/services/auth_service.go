package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is an operator account for the admin surface.
type User struct {
	ID        string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}

type AuthStore interface {
	FindUserByEmail(email string) (*User, error)
	AddUser(u *User) error
	CountUsers() (int, error)
}

type TokenSigner func(uid, email string, ttl time.Duration) (string, error)

// AuthService registers and authenticates operator accounts protecting the
// administrative surface (config mutation, bypass, restart).
type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token  string
	UserID string
}

func NewAuthService(store AuthStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  30 * 24 * time.Hour,
	}
}

// Bootstrapped reports whether any operator account exists yet. The first
// registration is open; every later one must come from an existing operator.
func (s *AuthService) Bootstrapped() (bool, error) {
	n, err := s.store.CountUsers()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *AuthService) Register(email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	existing, err := s.store.FindUserByEmail(email)
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
	userID := s.idGen("u", 7)
	if err := s.store.AddUser(&User{ID: userID, Email: email, PassHash: hash, CreatedAt: s.now()}); err != nil {
		return nil, err
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(userID, email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: userID}, nil
}

func (s *AuthService) Login(email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(email)
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
	return &AuthResult{Token: token, UserID: u.ID}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
