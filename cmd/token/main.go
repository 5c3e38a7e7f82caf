// Command token mints bearer tokens for local development.
package main

import (
	"flag"
	"fmt"
	"time"

	"edutrack/internal/auth"
	"edutrack/internal/config"
	"edutrack/internal/identity"
	"edutrack/internal/logger"
)

func main() {
	var (
		sub  = flag.String("sub", "", "person id (required)")
		name = flag.String("name", "", "display name")
		role = flag.String("role", string(identity.RoleSubject), "subject, owner or observer")
		ttl  = flag.Duration("ttl", 0, "token lifetime (defaults to ACCESS_TTL)")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, "pretty")

	if *sub == "" {
		flag.Usage()
		log.Fatal().Msg("-sub is required")
	}
	p := identity.Person{ID: *sub, Name: *name, Role: identity.Role(*role)}
	if !p.Role.Valid() {
		log.Fatal().Str("role", *role).Msg("unknown role")
	}
	if *ttl <= 0 {
		*ttl = cfg.AccessTTL
	}

	token, exp, err := auth.Issue(p, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("token issue failed")
	}
	log.Info().Str("sub", p.ID).Str("role", string(p.Role)).Time("expires_at", exp).Msg("token minted")
	fmt.Println(token)
}
