// Command token mints a session token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/David-Byun/wemake/internal/auth"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("SESSION_SECRET"), "signing secret (default $SESSION_SECRET)")
	profile := flag.String("profile", "", "profile id the token is issued for")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" {
		*secret = "wemake-dev-secret"
	}

	id, err := uuid.Parse(*profile)
	if err != nil || id == uuid.Nil {
		fmt.Fprintln(os.Stderr, "Usage: token -profile <uuid> [-secret s] [-ttl 24h]")
		os.Exit(2)
	}

	token, err := auth.NewTokenManager(*secret, *ttl).Generate(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Profile:  %s\n", id)
	fmt.Printf("Expires:  %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	fmt.Printf("Token:    %s\n", token)
	fmt.Printf("Header:   Authorization: Bearer %s\n", token)
}
