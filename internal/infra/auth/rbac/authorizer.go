package rbac

import (
	"errors"

	"cityos/internal/domain"
)

const DefaultSuperAdminRole = "super_admin"

const (
	CodeMissingRole    = "MISSING_ROLE"
	CodeTenantMismatch = "TENANT_MISMATCH"
	CodeNoTenant       = "TENANT_REQUIRED"
)

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Authorizer makes coarse role and tenant-membership decisions that do not
// need the PDP. The configured super-admin role passes every check.
type Authorizer struct {
	superAdminRole string
}

func NewAuthorizer(superAdminRole string) *Authorizer {
	if superAdminRole == "" {
		superAdminRole = DefaultSuperAdminRole
	}
	return &Authorizer{superAdminRole: superAdminRole}
}

func (a *Authorizer) IsSuperAdmin(claims domain.AuthClaims) bool {
	return claims.HasRole(a.superAdminRole)
}

// RequireAnyRole passes when the caller holds at least one of roles. With no
// roles listed only a super-admin passes.
func (a *Authorizer) RequireAnyRole(claims domain.AuthClaims, roles ...string) error {
	if claims.UserID == "" {
		return domain.ErrUnauthorized
	}
	if a.IsSuperAdmin(claims) {
		return nil
	}
	for _, role := range roles {
		if claims.HasRole(role) {
			return nil
		}
	}
	return &AuthzError{Code: CodeMissingRole, Err: domain.ErrForbidden}
}

// RequireTenant passes when rc carries a tenant and, if tenantID is given,
// it is that tenant.
func (a *Authorizer) RequireTenant(rc domain.ResolvedContext, tenantID string) error {
	if a.IsSuperAdmin(rc.Auth) {
		return nil
	}
	if !rc.HasTenant() {
		return &AuthzError{Code: CodeNoTenant, Err: domain.ErrForbidden}
	}
	if tenantID != "" && tenantID != rc.TenantID {
		return &AuthzError{Code: CodeTenantMismatch, Err: domain.ErrForbidden}
	}
	return nil
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}
