package service

import (
	"context"
	"errors"
	"testing"

	"pawsit/agent/internal/identity/domain"
	profiledomain "pawsit/agent/internal/profile/domain"
)

type mockAccountCreator struct {
	calls int
	err   error
}

func (m *mockAccountCreator) SignUp(ctx context.Context, email, password string) (*domain.TokenSet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &domain.TokenSet{UID: "user-1", Email: email, IDToken: "id", RefreshToken: "rt"}, nil
}

type mockProfileWriter struct {
	created []*profiledomain.Profile
	err     error
}

func (m *mockProfileWriter) Create(ctx context.Context, p *profiledomain.Profile) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, p)
	return nil
}

func TestRegister_Success(t *testing.T) {
	accounts := &mockAccountCreator{}
	profiles := &mockProfileWriter{}
	r := NewRegistrar(accounts, profiles, nil)
	ts, err := r.Register(context.Background(), "owner@example.com", "pw", " Pat  Owner ", profiledomain.RoleOwner)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ts.UID != "user-1" {
		t.Errorf("UID = %q, want user-1", ts.UID)
	}
	if len(profiles.created) != 1 {
		t.Fatalf("created %d profiles, want 1", len(profiles.created))
	}
	p := profiles.created[0]
	if p.UserID != "user-1" || p.Role != profiledomain.RoleOwner || p.DisplayName != "Pat Owner" {
		t.Errorf("profile = %+v", p)
	}
}

func TestRegister_InvalidRole(t *testing.T) {
	accounts := &mockAccountCreator{}
	r := NewRegistrar(accounts, &mockProfileWriter{}, nil)
	if _, err := r.Register(context.Background(), "a@example.com", "pw", "", profiledomain.RoleUnknown); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Register: want ErrInvalidRole, got %v", err)
	}
	if accounts.calls != 0 {
		t.Error("account should not be created for an invalid role")
	}
}

func TestRegister_Errors(t *testing.T) {
	signUpErr := errors.New("email taken")
	r := NewRegistrar(&mockAccountCreator{err: signUpErr}, &mockProfileWriter{}, nil)
	if _, err := r.Register(context.Background(), "a@example.com", "pw", "", profiledomain.RoleSitter); !errors.Is(err, signUpErr) {
		t.Errorf("sign-up failure: got %v", err)
	}

	writeErr := errors.New("db down")
	r = NewRegistrar(&mockAccountCreator{}, &mockProfileWriter{err: writeErr}, nil)
	if _, err := r.Register(context.Background(), "a@example.com", "pw", "", profiledomain.RoleSitter); !errors.Is(err, writeErr) {
		t.Errorf("profile failure: got %v", err)
	}
}
