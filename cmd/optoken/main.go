// Command optoken prints a bearer token for the operator endpoints, signed
// with the configured auth.jwt_secret.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cassiomorais/studiopay/internal/middleware"
)

func main() {
	subject := flag.String("subject", "", "Operator identity recorded in audit logs")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to auth.jwt_expiry)")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "-subject is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *ttl <= 0 {
		*ttl = cfg.Auth.JWTExpiry
	}

	token, err := middleware.IssueOperatorToken(cfg.Auth.JWTSecret, *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
