package domain

import (
	"testing"
	"time"
)

func TestAccount_Validate(t *testing.T) {
	a := &Account{}
	if err := a.Validate(); err == nil {
		t.Fatal("Validate without email should fail")
	}
	a.Email = "owner@example.com"
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if a.Status != AccountStatusActive {
		t.Errorf("Status = %q, want %q", a.Status, AccountStatusActive)
	}
}

func TestClaims_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		exp  time.Time
		want bool
	}{
		{"no expiry", time.Time{}, false},
		{"future", now.Add(time.Minute), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Minute), true},
	}
	for _, tc := range testCases {
		if got := (Claims{ExpiresAt: tc.exp}).Expired(now); got != tc.want {
			t.Errorf("%s: Expired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRefreshSession_Active(t *testing.T) {
	now := time.Now()
	s := &RefreshSession{ExpiresAt: now.Add(time.Hour)}
	if !s.Active(now) {
		t.Error("fresh session should be active")
	}
	revoked := now
	s.RevokedAt = &revoked
	if s.Active(now) {
		t.Error("revoked session should not be active")
	}
	if (&RefreshSession{ExpiresAt: now.Add(-time.Second)}).Active(now) {
		t.Error("expired session should not be active")
	}
}

func TestActionCode_Usable(t *testing.T) {
	now := time.Now()
	c := &ActionCode{ExpiresAt: now.Add(time.Hour)}
	if !c.Usable(now) {
		t.Error("fresh code should be usable")
	}
	used := now
	c.UsedAt = &used
	if c.Usable(now) {
		t.Error("used code should not be usable")
	}
}
