package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"cityos/internal/config"
	"cityos/internal/domain"
	"cityos/internal/infra/db"
	"cityos/internal/infra/logging"
	"cityos/internal/usecase"
)

// runResolveHost runs hostname resolution against the tenant registry in
// POSTGRES_DSN and prints the resulting context.
func runResolveHost(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "resolve-host requires <host>")
		return 1
	}
	host := args[0]

	fs := flag.NewFlagSet("resolve-host", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var roles string
	fs.StringVar(&roles, "roles", "", "comma separated caller roles")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	cfg := config.FromEnv()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	store, err := db.NewStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init store: %v\n", err)
		return 1
	}
	if !store.Enabled() {
		fmt.Fprintln(os.Stderr, "resolve-host requires POSTGRES_DSN")
		return 1
	}

	resolver := usecase.NewContextResolver(nil, db.NewTenantRepository(store.DB), cfg.SuperAdminRole,
		usecase.WithLookupTimeout(cfg.TenantLookupTimeout()),
		usecase.WithResolverLogger(logger),
	)
	auth := domain.AuthClaims{Roles: splitList(roles)}
	rc := resolver.Resolve(context.Background(), usecase.Signals{Host: host}, auth)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rc); err != nil {
		fmt.Fprintf(os.Stderr, "encode context: %v\n", err)
		return 1
	}
	return 0
}
