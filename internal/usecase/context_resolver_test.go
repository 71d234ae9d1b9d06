package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cityos/internal/domain"
	"cityos/internal/infra/signedctx"

	"github.com/sirupsen/logrus"
)

var resolverSecret = []byte("resolver-test-secret")

type stubTenantLookup struct {
	mu         sync.Mutex
	custom     map[string]*domain.Tenant
	subdomains map[string]*domain.Tenant
	err        error
	block      bool
	calls      []string
}

func (s *stubTenantLookup) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubTenantLookup) find(ctx context.Context, m map[string]*domain.Tenant, key string) (*domain.Tenant, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	t, ok := m[key]
	if !ok || t.Status != domain.TenantActive {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *stubTenantLookup) FindActiveByCustomDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	s.record("custom:" + host)
	return s.find(ctx, s.custom, host)
}

func (s *stubTenantLookup) FindActiveBySubdomain(ctx context.Context, sub string) (*domain.Tenant, error) {
	s.record("subdomain:" + sub)
	return s.find(ctx, s.subdomains, sub)
}

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) RecordResolution(resolvedBy string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[resolvedBy]++
}

func newLookup() *stubTenantLookup {
	acme := &domain.Tenant{ID: "t-acme", Status: domain.TenantActive, CountryID: "sa", ScopeType: domain.ScopeCity, ScopeID: "riyadh"}
	bazaar := &domain.Tenant{ID: "t-bazaar", Status: domain.TenantActive, CategoryID: "food"}
	dormant := &domain.Tenant{ID: "t-dormant", Status: domain.TenantSuspended}
	return &stubTenantLookup{
		custom:     map[string]*domain.Tenant{"shop.acme.com": acme, "old.example": dormant},
		subdomains: map[string]*domain.Tenant{"bazaar": bazaar, "dormant": dormant},
	}
}

func newResolver(t *testing.T, now time.Time, lookup domain.TenantLookup, opts ...ResolverOption) (*ContextResolver, *signedctx.Signer) {
	t.Helper()
	signer, err := signedctx.NewSigner(resolverSecret)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier := signedctx.NewVerifier(resolverSecret, signedctx.WithClock(func() time.Time { return now }))
	return NewContextResolver(verifier, lookup, "super_admin", opts...), signer
}

func TestResolveSignedHeadersEndToEnd(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	lookup := newLookup()
	resolver, signer := newResolver(t, now, lookup)

	sig := Signals{
		Headers: signer.Sign("t1", "", "", now),
		Host:    "shop.acme.com",
		Cookies: map[string]string{CookieSelectedTenant: "t-other"},
	}
	auth := domain.AuthClaims{UserID: "u1", Roles: []string{"super_admin"}}
	rc := resolver.Resolve(context.Background(), sig, auth)

	if rc.ResolvedBy != domain.ResolvedBySignedHeaders || rc.TenantID != "t1" {
		t.Fatalf("expected signed-header context for t1, got %+v", rc)
	}
	if rc.StoreID != "" || rc.PortalType != domain.PortalPublic {
		t.Fatalf("expected no store and public portal, got %+v", rc)
	}
	if rc.Auth.UserID != "u1" {
		t.Fatalf("expected auth merged, got %+v", rc.Auth)
	}
	if len(lookup.calls) != 0 {
		t.Fatalf("expected no hostname lookups after signed match, got %v", lookup.calls)
	}
}

func TestResolveStaleSignedHeadersFallThrough(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	resolver, signer := newResolver(t, now, newLookup())

	for _, at := range []time.Time{
		now.Add(-signedctx.DefaultTolerance - time.Millisecond),
		now.Add(signedctx.DefaultTolerance + time.Millisecond),
	} {
		rc := resolver.Resolve(context.Background(), Signals{
			Headers: signer.Sign("t1", "s1", "vendor", at),
			Host:    "shop.acme.com",
		}, domain.AuthClaims{})
		if rc.ResolvedBy != domain.ResolvedByCustomDomain || rc.TenantID != "t-acme" {
			t.Fatalf("expected fall-through to custom domain, got %+v", rc)
		}
	}
}

func TestResolveTamperedSignatureFallsToNone(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	resolver, signer := newResolver(t, now, newLookup())

	h := signer.Sign("t1", "", "", now)
	last := h.Signature[len(h.Signature)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	h.Signature = h.Signature[:len(h.Signature)-1] + string(replacement)

	rc := resolver.Resolve(context.Background(), Signals{Headers: h}, domain.AuthClaims{})
	if rc.ResolvedBy != domain.ResolvedByNone || rc.TenantID != "" {
		t.Fatalf("expected unresolved context, got %+v", rc)
	}
}

func TestResolveHostname(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		host   string
		tenant string
		by     domain.ResolvedBy
	}{
		{name: "custom domain", host: "shop.acme.com", tenant: "t-acme", by: domain.ResolvedByCustomDomain},
		{name: "custom domain with port and case", host: "Shop.ACME.com:8443", tenant: "t-acme", by: domain.ResolvedByCustomDomain},
		{name: "subdomain", host: "bazaar.cityos.app", tenant: "t-bazaar", by: domain.ResolvedBySubdomain},
		{name: "inactive custom domain", host: "old.example", by: domain.ResolvedByNone},
		{name: "inactive subdomain", host: "dormant.cityos.app", by: domain.ResolvedByNone},
		{name: "unknown", host: "nobody.cityos.app", by: domain.ResolvedByNone},
		{name: "ip literal", host: "10.0.0.1:8080", by: domain.ResolvedByNone},
		{name: "empty", host: "", by: domain.ResolvedByNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, _ := newResolver(t, now, newLookup())
			rc := resolver.Resolve(context.Background(), Signals{Host: tt.host}, domain.AuthClaims{})
			if rc.ResolvedBy != tt.by || rc.TenantID != tt.tenant {
				t.Fatalf("expected %s/%q, got %s/%q", tt.by, tt.tenant, rc.ResolvedBy, rc.TenantID)
			}
			if rc.PortalType != domain.PortalPublic {
				t.Fatalf("expected public portal, got %s", rc.PortalType)
			}
		})
	}
}

func TestResolveIPHostSkipsLookups(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	for _, host := range []string{"10.0.0.1:8080", "10.0.0.1", "[::1]:443", "::1", ""} {
		t.Run(host, func(t *testing.T) {
			lookup := newLookup()
			resolver, _ := newResolver(t, now, lookup)
			rc := resolver.Resolve(context.Background(), Signals{Host: host}, domain.AuthClaims{})
			if rc.ResolvedBy != domain.ResolvedByNone {
				t.Fatalf("expected none, got %s", rc.ResolvedBy)
			}
			if len(lookup.calls) != 0 {
				t.Fatalf("expected no tenant lookups, got %v", lookup.calls)
			}
		})
	}

	lookup := newLookup()
	resolver, _ := newResolver(t, now, lookup)
	resolver.Resolve(context.Background(), Signals{Host: "nobody.cityos.app"}, domain.AuthClaims{})
	want := []string{"custom:nobody.cityos.app", "subdomain:nobody"}
	if strings.Join(lookup.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, lookup.calls)
	}
}

func TestResolveCustomDomainCarriesTenantScope(t *testing.T) {
	resolver, _ := newResolver(t, time.Now(), newLookup())
	rc := resolver.Resolve(context.Background(), Signals{Host: "shop.acme.com"}, domain.AuthClaims{})
	if rc.CountryID != "sa" || rc.ScopeType != domain.ScopeCity || rc.ScopeID != "riyadh" {
		t.Fatalf("expected tenant geo scope, got %+v", rc)
	}
}

func TestResolveCookieRequiresSuperAdmin(t *testing.T) {
	resolver, _ := newResolver(t, time.Now(), newLookup())
	cookies := map[string]string{CookieSelectedTenant: "t9", CookieSelectedStore: "s9"}

	rc := resolver.Resolve(context.Background(), Signals{Cookies: cookies}, domain.AuthClaims{UserID: "u1", Roles: []string{"tenant_admin"}})
	if rc.ResolvedBy != domain.ResolvedByNone || rc.TenantID != "" {
		t.Fatalf("expected cookie ignored for non super-admin, got %+v", rc)
	}

	rc = resolver.Resolve(context.Background(), Signals{Cookies: cookies}, domain.AuthClaims{UserID: "root", Roles: []string{"super_admin"}})
	if rc.ResolvedBy != domain.ResolvedByCookie || rc.TenantID != "t9" || rc.StoreID != "s9" {
		t.Fatalf("expected cookie context, got %+v", rc)
	}
	if rc.PortalType != domain.PortalOperator {
		t.Fatalf("expected operator portal, got %s", rc.PortalType)
	}
}

func TestResolveHostnameBeatsCookie(t *testing.T) {
	resolver, _ := newResolver(t, time.Now(), newLookup())
	rc := resolver.Resolve(context.Background(), Signals{
		Host:    "bazaar.cityos.app",
		Cookies: map[string]string{CookieSelectedTenant: "t9"},
	}, domain.AuthClaims{UserID: "root", Roles: []string{"super_admin"}})
	if rc.ResolvedBy != domain.ResolvedBySubdomain || rc.TenantID != "t-bazaar" {
		t.Fatalf("expected subdomain to win over cookie, got %+v", rc)
	}
}

func TestResolveLookupFailureDegrades(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	lookup := newLookup()
	lookup.err = errors.New("connection refused")
	resolver, _ := newResolver(t, time.Now(), lookup, WithResolverLogger(logger))

	rc := resolver.Resolve(context.Background(), Signals{
		Host:    "shop.acme.com",
		Cookies: map[string]string{CookieSelectedTenant: "t9"},
	}, domain.AuthClaims{UserID: "root", Roles: []string{"super_admin"}})
	if rc.ResolvedBy != domain.ResolvedByCookie || rc.TenantID != "t9" {
		t.Fatalf("expected degradation to cookie, got %+v", rc)
	}
	if !strings.Contains(buf.String(), "tenant lookup failed") {
		t.Fatalf("expected lookup failure logged, got %q", buf.String())
	}
	if len(lookup.calls) != 2 {
		t.Fatalf("expected custom and subdomain lookups, got %v", lookup.calls)
	}
}

func TestResolveLookupBoundedByTimeout(t *testing.T) {
	lookup := newLookup()
	lookup.block = true
	resolver, _ := newResolver(t, time.Now(), lookup, WithLookupTimeout(20*time.Millisecond))

	done := make(chan domain.ResolvedContext, 1)
	go func() {
		done <- resolver.Resolve(context.Background(), Signals{Host: "shop.acme.com"}, domain.AuthClaims{})
	}()
	select {
	case rc := <-done:
		if rc.ResolvedBy != domain.ResolvedByNone {
			t.Fatalf("expected unresolved context after timeouts, got %+v", rc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resolution did not honour lookup timeout")
	}
}

func TestResolveHonoursCallerCancellation(t *testing.T) {
	lookup := newLookup()
	lookup.block = true
	resolver, _ := newResolver(t, time.Now(), lookup)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc := resolver.Resolve(ctx, Signals{Host: "shop.acme.com"}, domain.AuthClaims{})
	if rc.ResolvedBy != domain.ResolvedByNone {
		t.Fatalf("expected unresolved context, got %+v", rc)
	}
}

func TestResolveNoneHasNoScope(t *testing.T) {
	rec := &countingRecorder{}
	resolver := NewContextResolver(nil, nil, "super_admin", WithResolutionRecorder(rec))
	roles := []string{"viewer"}
	rc := resolver.Resolve(context.Background(), Signals{Host: "anything.test"}, domain.AuthClaims{UserID: "u1", Roles: roles})

	want := domain.ResolvedContext{
		PortalType: domain.PortalPublic,
		ResolvedBy: domain.ResolvedByNone,
		Auth:       domain.AuthClaims{UserID: "u1", Roles: []string{"viewer"}},
	}
	if rc.TenantID != "" || rc.StoreID != "" || rc.CountryID != "" || rc.ScopeID != "" {
		t.Fatalf("expected empty scope, got %+v", rc)
	}
	if rc.ResolvedBy != want.ResolvedBy || rc.PortalType != want.PortalType || rc.Auth.UserID != "u1" {
		t.Fatalf("unexpected context %+v", rc)
	}
	roles[0] = "mutated"
	if rc.Auth.Roles[0] != "viewer" {
		t.Fatal("expected context roles not to alias caller slice")
	}
	if rec.counts["none"] != 1 {
		t.Fatalf("expected one none resolution recorded, got %v", rec.counts)
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := map[string]string{
		"Example.COM":       "example.com",
		"example.com:443":   "example.com",
		"example.com.":      "example.com",
		"[::1]:8080":        "::1",
		"  shop.acme.com  ": "shop.acme.com",
		"":                  "",
	}
	for in, want := range tests {
		if got := NormalizeHost(in); got != want {
			t.Fatalf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}
