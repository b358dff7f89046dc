// cmd/tokengen mints RS256 access tokens with the configured signing key, for
// local runs and operator calls against the admin routes. Production tokens
// come from the identity service.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"entitlement-service/internal/config"
	"entitlement-service/internal/pkg/jwt"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[TOKENGEN] No .env file found, relying on system env vars")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(os.Args[1:], config.Load().JWT, os.Stdout, logger); err != nil {
		logger.Fatal("failed to mint token", zap.Error(err))
	}
}

var knownRoles = map[string]bool{
	jwt.RoleContributor: true,
	jwt.RoleAdmin:       true,
	jwt.RoleSuperAdmin:  true,
}

// run mints one token for -sub and writes it to out. The token is verified
// against the public key before it is printed.
func run(args []string, cfg jwt.Config, out io.Writer, logger *zap.Logger) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	subject := fs.String("sub", "", "contributor id the token is issued for")
	roles := fs.String("roles", jwt.RoleContributor, "comma separated roles")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-sub is required")
	}
	if cfg.PrivPath == "" {
		return errors.New("JWT_PRIVATE_KEY_PATH is required to mint tokens")
	}

	var granted []string
	for _, r := range strings.Split(*roles, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !knownRoles[r] {
			return fmt.Errorf("unknown role %q", r)
		}
		granted = append(granted, r)
	}

	m, err := jwt.LoadAndBuild(cfg)
	if err != nil {
		return err
	}
	token, jti, err := m.Generator.Generate(*subject, granted)
	if err != nil {
		return err
	}
	if _, err := m.Verifier.Verify(token); err != nil {
		return fmt.Errorf("key pair mismatch: %w", err)
	}

	logger.Info("token minted",
		zap.String("contributor_id", *subject),
		zap.Strings("roles", granted),
		zap.String("jti", jti),
		zap.Duration("ttl", cfg.TTL),
	)
	_, err = fmt.Fprintln(out, token)
	return err
}
