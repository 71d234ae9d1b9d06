package usecase

import (
	"context"

	"cityos/internal/domain"
)

// PrincipalBuilder projects a resolved context onto the PDP principal shape.
type PrincipalBuilder func(rc domain.ResolvedContext) domain.Principal

// AccessService is the single composition point protected handlers use:
// resolve the context, short-circuit on coarse role checks, then either ask
// the PDP or obtain a list filter.
type AccessService struct {
	resolver   *ContextResolver
	decisions  DecisionClient
	roles      RoleAuthorizer
	principals PrincipalBuilder
}

func NewAccessService(resolver *ContextResolver, decisions DecisionClient, roles RoleAuthorizer, principals PrincipalBuilder) *AccessService {
	return &AccessService{
		resolver:   resolver,
		decisions:  decisions,
		roles:      roles,
		principals: principals,
	}
}

func (s *AccessService) Resolve(ctx context.Context, sig Signals, auth domain.AuthClaims) domain.ResolvedContext {
	if s.resolver == nil {
		return domain.UnresolvedContext(auth)
	}
	return s.resolver.Resolve(ctx, sig, auth)
}

func (s *AccessService) IsSuperAdmin(rc domain.ResolvedContext) bool {
	return s.roles.IsSuperAdmin(rc.Auth)
}

func (s *AccessService) HasRole(rc domain.ResolvedContext, roles ...string) bool {
	return s.roles.RequireAnyRole(rc.Auth, roles...) == nil
}

// RequireRole is a coarse check decided locally. The super-admin role always
// passes; with no roles listed only the super-admin does.
func (s *AccessService) RequireRole(rc domain.ResolvedContext, roles ...string) error {
	return s.roles.RequireAnyRole(rc.Auth, roles...)
}

func (s *AccessService) RequireTenant(rc domain.ResolvedContext) error {
	return s.roles.RequireTenant(rc, "")
}

// RequireTenantAccess passes for the super-admin and for contexts resolved to
// tenantID.
func (s *AccessService) RequireTenantAccess(rc domain.ResolvedContext, tenantID string) error {
	return s.roles.RequireTenant(rc, tenantID)
}

// Can asks the PDP about a single action.
func (s *AccessService) Can(ctx context.Context, rc domain.ResolvedContext, resource domain.Resource, action string) bool {
	return s.Decide(ctx, rc, resource, []string{action}).Allowed(action)
}

// Decide asks the PDP about several actions in one round trip. Every
// requested action has an entry in the result.
func (s *AccessService) Decide(ctx context.Context, rc domain.ResolvedContext, resource domain.Resource, actions []string) domain.PolicyDecision {
	if len(actions) == 0 {
		return domain.PolicyDecision{}
	}
	decision := s.decisions.CheckActions(ctx, s.principals(rc), resource, actions)
	if decision == nil {
		decision = domain.PolicyDecision{}
	}
	for _, action := range actions {
		if _, ok := decision[action]; !ok {
			decision[action] = domain.EffectDeny
		}
	}
	return decision
}

// ScopeFilter returns the list filter for rc: everything for a super-admin,
// the resolved tenant (and store) otherwise, and public rows when no tenant
// was resolved.
func (s *AccessService) ScopeFilter(rc domain.ResolvedContext) domain.Filter {
	if s.IsSuperAdmin(rc) {
		return domain.MatchAll()
	}
	if !rc.HasTenant() {
		return domain.MatchEquals(map[string]string{"status": "active"})
	}
	eq := map[string]string{"tenant_id": rc.TenantID}
	if rc.StoreID != "" {
		eq["store_id"] = rc.StoreID
	}
	return domain.MatchEquals(eq)
}
