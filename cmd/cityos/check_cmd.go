package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"cityos/internal/config"
	"cityos/internal/domain"
	"cityos/internal/infra/logging"
	"cityos/internal/infra/pdp"
)

type attrFlag map[string]any

func (a attrFlag) String() string {
	return fmt.Sprint(map[string]any(a))
}

func (a attrFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("attr must be key=value, got %q", value)
	}
	a[strings.TrimSpace(key)] = val
	return nil
}

func runCheck(args []string) int {
	cfg := config.FromEnv()

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var kind string
	var resourceID string
	var actions string
	var userID string
	var roles string
	var tenantID string
	var storeID string
	var portal string
	attrs := attrFlag{}

	fs.StringVar(&kind, "kind", "", "resource kind")
	fs.StringVar(&resourceID, "resource-id", "", "resource id")
	fs.StringVar(&actions, "actions", "", "comma separated actions")
	fs.Var(attrs, "attr", "resource attribute key=value (repeatable)")
	fs.StringVar(&userID, "user-id", "", "principal user id (default anonymous)")
	fs.StringVar(&roles, "roles", "", "comma separated principal roles")
	fs.StringVar(&tenantID, "tenant-id", "", "resolved tenant id")
	fs.StringVar(&storeID, "store-id", "", "resolved store id")
	fs.StringVar(&portal, "portal", string(domain.PortalPublic), "resolved portal type")
	fs.StringVar(&cfg.PDPURL, "pdp-url", cfg.PDPURL, "PDP base URL (default $PDP_URL)")
	fs.StringVar(&cfg.PDPAPIKey, "api-key", cfg.PDPAPIKey, "PDP api key (default $PDP_API_KEY)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if kind == "" || actions == "" {
		fmt.Fprintln(os.Stderr, "check requires --kind and --actions")
		return 1
	}
	portalType, ok := domain.ParsePortalType(portal)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown portal type %q\n", portal)
		return 1
	}

	rc := domain.UnresolvedContext(domain.AuthClaims{})
	if tenantID != "" {
		rc.TenantID = tenantID
		rc.StoreID = storeID
		rc.ResolvedBy = domain.ResolvedBySignedHeaders
	}
	rc.PortalType = portalType
	if userID != "" {
		rc = rc.WithAuth(domain.AuthClaims{UserID: userID, Roles: splitList(roles)})
	}

	resource := pdp.BuildResource(kind, domain.Document{ID: resourceID, Metadata: attrs})
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	client := pdp.NewClient(pdp.ConfigFrom(cfg), pdp.WithLogger(logger))
	decision := client.CheckActions(context.Background(), pdp.BuildPrincipal(rc), resource, splitList(actions))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		fmt.Fprintf(os.Stderr, "encode decision: %v\n", err)
		return 1
	}
	return 0
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
