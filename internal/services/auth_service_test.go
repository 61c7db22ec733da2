package services

import (
	"errors"
	"testing"
	"time"
)

type authStubStore struct {
	users map[string]*User
}

func newAuthStubStore() *authStubStore {
	return &authStubStore{users: map[string]*User{}}
}

func (s *authStubStore) FindUserByEmail(email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *authStubStore) AddUser(u *User) error {
	if _, ok := s.users[u.Email]; ok {
		return errors.New("duplicate user")
	}
	copy := *u
	s.users[u.Email] = &copy
	return nil
}

func (s *authStubStore) CountUsers() (int, error) {
	return len(s.users), nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, ttl time.Duration) (string, error) {
		return "token:" + uid, nil
	})
	svc.now = func() time.Time { return time.Unix(0, 0) }
	svc.idGen = func(prefix string, n int) string { return prefix + "1234567" }

	res, err := svc.Register("op@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.UserID == "" {
		t.Fatalf("expected user id in result: %+v", res)
	}
	if res.Token != "token:"+res.UserID {
		t.Fatalf("unexpected token %q", res.Token)
	}

	if _, err = svc.Register("op@example.com", "Secret123"); err == nil {
		t.Fatalf("expected conflict error on duplicate registration")
	}

	loginRes, err := svc.Login("op@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("expected token in login response")
	}

	if _, err := svc.Login("op@example.com", "wrong"); err == nil {
		t.Fatalf("expected error for wrong password")
	}
	if _, err := svc.Login("missing@example.com", "Secret123"); err == nil {
		t.Fatalf("expected error for missing user")
	}
}

func TestAuthBootstrapped(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, ttl time.Duration) (string, error) {
		return "tok", nil
	})

	booted, err := svc.Bootstrapped()
	if err != nil {
		t.Fatalf("Bootstrapped returned error: %v", err)
	}
	if booted {
		t.Fatalf("empty store must not report bootstrapped")
	}

	if _, err := svc.Register("op@example.com", "Secret123"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	booted, err = svc.Bootstrapped()
	if err != nil {
		t.Fatalf("Bootstrapped returned error: %v", err)
	}
	if !booted {
		t.Fatalf("expected bootstrapped after first registration")
	}
}

func TestAuthValidation(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, ttl time.Duration) (string, error) {
		return "tok", nil
	})

	if _, err := svc.Register("", ""); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := svc.Login("", ""); err == nil {
		t.Fatalf("expected validation error on login")
	}
}

func TestServiceErrorCodes(t *testing.T) {
	se, ok := AsServiceError(NewConflictError("email exists"))
	if !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict service error, got %v", se)
	}
	if _, ok := AsServiceError(errors.New("plain")); ok {
		t.Fatalf("plain errors must not classify as service errors")
	}
}
