// Command pdp-dev serves the embedded rego policy behind the PDP check
// protocol for local development.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"cityos/internal/config"
	"cityos/internal/infra/logging"
	"cityos/internal/infra/policyopa"
)

func main() {
	cfg := config.FromEnv()

	fs := flag.NewFlagSet("pdp-dev", flag.ExitOnError)
	addr := fs.String("addr", envOr("PDP_DEV_ADDR", ":8181"), "listen address")
	policyPath := fs.String("policy", cfg.PDPPolicyPath, "rego policy file (default embedded policy)")
	_ = fs.Parse(os.Args[1:])

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.IsProduction() {
		log.Fatal("pdp-dev must not run with CITYOS_ENV=production")
	}

	engine, err := policyopa.NewEngine(context.Background(), *policyPath)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to load policy")
	}
	if cfg.PDPAPIKey == "" {
		logger.Warn("PDP_API_KEY not set; check endpoint is unauthenticated")
	}

	handler := policyopa.NewHandler(engine, cfg.PDPAPIKey, logger)
	logger.WithField("addr", *addr).Info("pdp-dev listening")
	if err := handler.Run(*addr); err != nil {
		logger.WithField("error", err.Error()).Fatal("server exited")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
