package usecase

import (
	"context"

	"cityos/internal/domain"
)

type HeaderVerifier interface {
	Verify(h domain.SignedHeaders) (domain.ResolvedContext, bool)
}

type ResolutionRecorder interface {
	RecordResolution(resolvedBy string)
}

// DecisionClient answers per-action authorization questions. Implementations
// must never fail: an unavailable PDP is answered by a fallback policy.
type DecisionClient interface {
	CheckActions(ctx context.Context, principal domain.Principal, resource domain.Resource, actions []string) domain.PolicyDecision
}

type RoleAuthorizer interface {
	IsSuperAdmin(claims domain.AuthClaims) bool
	RequireAnyRole(claims domain.AuthClaims, roles ...string) error
	RequireTenant(rc domain.ResolvedContext, tenantID string) error
}

type TenantRepository interface {
	domain.TenantLookup
	GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	Create(ctx context.Context, t domain.Tenant) (domain.Tenant, error)
	UpdateStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error
}

type StoreRepository interface {
	List(ctx context.Context, filter domain.Filter) ([]domain.Store, error)
	Get(ctx context.Context, storeID string) (*domain.Store, error)
	Create(ctx context.Context, s domain.Store) (domain.Store, error)
}
