package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"servio-crm/internal/adapters/persistence/repositories"
	"servio-crm/internal/config"
	"servio-crm/internal/pkg/jwt"
	"servio-crm/internal/pkg/password"
)

// Mints a bearer token for local testing against the seeded dev database.
// Token issuance in production belongs to the identity provider; this tool
// exists so the API can be exercised with curl.
func main() {
	username := flag.String("username", "somchai", "seeded username to mint a token for")
	pass := flag.String("password", "devpass12345", "the user's password")
	minutes := flag.Int("minutes", 480, "token lifetime in minutes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase()

	user, err := repositories.NewUserRepository(db).GetByUsername(context.Background(), *username)
	if err != nil {
		log.Fatalf("❌ Unknown user %q: %v", *username, err)
	}
	if !password.Verify(*pass, user.Password) {
		log.Fatalf("❌ Wrong password for %q", *username)
	}

	token, err := jwt.GenerateAccessToken(user.ID, user.Username, user.Role, cfg.JWT.Secret, *minutes)
	if err != nil {
		log.Fatalf("❌ Failed to generate token: %v", err)
	}

	fmt.Println(token)
}
