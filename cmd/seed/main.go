// seed inserts development accounts for local testing: one owner, one sitter and one
// administrator, all with the same password. Idempotent: accounts that already exist are skipped.
package main

import (
	"context"
	"log"
	"time"

	"pawsit/agent/internal/config"
	"pawsit/agent/internal/db"
	identitydomain "pawsit/agent/internal/identity/domain"
	identityrepo "pawsit/agent/internal/identity/repository"
	profiledomain "pawsit/agent/internal/profile/domain"
	profilerepo "pawsit/agent/internal/profile/repository"
	"pawsit/agent/internal/security"
)

const devPassword = "password123"

type seedAccount struct {
	id          string
	email       string
	displayName string
	role        profiledomain.Role
	admin       bool
}

var seedAccounts = []seedAccount{
	{id: "dev-owner-001", email: "owner@example.com", displayName: "Olive Owner", role: profiledomain.RoleOwner},
	{id: "dev-sitter-001", email: "sitter@example.com", displayName: "Sam Sitter", role: profiledomain.RoleSitter},
	// The admin keeps an owner profile; the elevated claim routes it to the admin dashboard regardless.
	{id: "dev-admin-001", email: "admin@example.com", displayName: "Ada Admin", role: profiledomain.RoleOwner, admin: true},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	accounts := identityrepo.NewPostgresAccountRepository(conn)
	profiles := profilerepo.NewPostgresRepository(conn)
	ctx := context.Background()

	passwordHash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	for _, s := range seedAccounts {
		existing, err := accounts.GetByEmail(ctx, s.email)
		if err != nil {
			log.Fatalf("seed check %s: %v", s.email, err)
		}
		if existing != nil {
			log.Printf("%s already exists, skipping", s.email)
			continue
		}
		if err := accounts.Create(ctx, &identitydomain.Account{
			ID:           s.id,
			Email:        s.email,
			PasswordHash: passwordHash,
			Admin:        s.admin,
			Status:       identitydomain.AccountStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			log.Fatalf("create account %s: %v", s.email, err)
		}
		if err := profiles.Create(ctx, &profiledomain.Profile{
			UserID:      s.id,
			Role:        s.role,
			DisplayName: s.displayName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			log.Fatalf("create profile %s: %v", s.email, err)
		}
		log.Printf("seeded %s (role=%s admin=%v)", s.email, s.role, s.admin)
	}
	log.Printf("seed complete; password for all accounts: %s", devPassword)
}
