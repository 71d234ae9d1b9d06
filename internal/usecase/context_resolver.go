package usecase

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"cityos/internal/domain"

	"github.com/sirupsen/logrus"
)

const (
	CookieSelectedTenant = "cityos-selected-tenant"
	CookieSelectedStore  = "cityos-selected-store"
)

// Signals are the raw per-request inputs to context resolution.
type Signals struct {
	Headers domain.SignedHeaders
	Host    string
	Cookies map[string]string
}

// ContextResolver derives a ResolvedContext from request signals. Sources are
// tried strictly in order and the first match wins:
// signed headers, custom domain, subdomain, super-admin cookie.
type ContextResolver struct {
	verifier       HeaderVerifier
	tenants        domain.TenantLookup
	superAdminRole string
	lookupTimeout  time.Duration
	logger         logrus.FieldLogger
	metrics        ResolutionRecorder
}

type ResolverOption func(*ContextResolver)

func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *ContextResolver) {
		r.lookupTimeout = d
	}
}

func WithResolverLogger(logger logrus.FieldLogger) ResolverOption {
	return func(r *ContextResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithResolutionRecorder(rec ResolutionRecorder) ResolverOption {
	return func(r *ContextResolver) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

func NewContextResolver(verifier HeaderVerifier, tenants domain.TenantLookup, superAdminRole string, opts ...ResolverOption) *ContextResolver {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := &ContextResolver{
		verifier:       verifier,
		tenants:        tenants,
		superAdminRole: superAdminRole,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails. Unverifiable or unmatched signals yield a context with
// no tenant, resolved_by "none" and the public portal. auth is attached to
// whatever context is produced.
func (r *ContextResolver) Resolve(ctx context.Context, sig Signals, auth domain.AuthClaims) domain.ResolvedContext {
	rc := r.resolve(ctx, sig, auth).WithAuth(auth)
	if r.metrics != nil {
		r.metrics.RecordResolution(string(rc.ResolvedBy))
	}
	return rc
}

func (r *ContextResolver) resolve(ctx context.Context, sig Signals, auth domain.AuthClaims) domain.ResolvedContext {
	if r.verifier != nil && sig.Headers.Present() {
		if rc, ok := r.verifier.Verify(sig.Headers); ok {
			return rc
		}
	}

	host := NormalizeHost(sig.Host)
	if hostResolvable(host) && r.tenants != nil {
		if t, ok := r.lookup(ctx, "custom_domain", host, r.tenants.FindActiveByCustomDomain); ok {
			return tenantContext(t, domain.ResolvedByCustomDomain)
		}
		if sub := firstLabel(host); sub != "" {
			if t, ok := r.lookup(ctx, "subdomain", sub, r.tenants.FindActiveBySubdomain); ok {
				return tenantContext(t, domain.ResolvedBySubdomain)
			}
		}
	}

	if rc, ok := r.fromCookies(sig.Cookies, auth); ok {
		return rc
	}
	return domain.UnresolvedContext(auth)
}

type lookupFunc func(ctx context.Context, key string) (*domain.Tenant, error)

func (r *ContextResolver) lookup(ctx context.Context, source, key string, fn lookupFunc) (*domain.Tenant, bool) {
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}
	t, err := fn(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WithFields(logrus.Fields{
				"source": source,
				"host":   key,
				"error":  err.Error(),
			}).Error("tenant lookup failed")
		}
		return nil, false
	}
	if t == nil || t.Status != domain.TenantActive {
		return nil, false
	}
	return t, true
}

// fromCookies honours the operator tenant-selection cookies only for
// super-admins. Anyone else setting them gets nothing from them.
func (r *ContextResolver) fromCookies(cookies map[string]string, auth domain.AuthClaims) (domain.ResolvedContext, bool) {
	tenantID := strings.TrimSpace(cookies[CookieSelectedTenant])
	if tenantID == "" || !auth.HasRole(r.superAdminRole) {
		return domain.ResolvedContext{}, false
	}
	return domain.ResolvedContext{
		TenantID:   tenantID,
		StoreID:    strings.TrimSpace(cookies[CookieSelectedStore]),
		PortalType: domain.PortalOperator,
		ResolvedBy: domain.ResolvedByCookie,
	}, true
}

func tenantContext(t *domain.Tenant, by domain.ResolvedBy) domain.ResolvedContext {
	return domain.ResolvedContext{
		CountryID:     t.CountryID,
		ScopeType:     t.ScopeType,
		ScopeID:       t.ScopeID,
		CategoryID:    t.CategoryID,
		SubcategoryID: t.SubcategoryID,
		TenantID:      t.ID,
		PortalType:    domain.PortalPublic,
		ResolvedBy:    by,
	}
}

// NormalizeHost lower-cases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(host, ".")
}

// hostResolvable reports whether host can name a tenant. Empty hosts and IP
// literals never do.
func hostResolvable(host string) bool {
	return host != "" && net.ParseIP(host) == nil
}

// firstLabel returns the leftmost DNS label.
func firstLabel(host string) string {
	label, _, _ := strings.Cut(host, ".")
	return label
}
