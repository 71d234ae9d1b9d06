package rbac

import (
	"errors"
	"testing"

	"cityos/internal/domain"
)

func TestRequireAnyRole(t *testing.T) {
	a := NewAuthorizer("")

	tests := []struct {
		name     string
		claims   domain.AuthClaims
		roles    []string
		wantErr  error
		wantCode string
	}{
		{name: "anonymous", claims: domain.AuthClaims{}, roles: []string{"vendor"}, wantErr: domain.ErrUnauthorized},
		{name: "holds role", claims: domain.AuthClaims{UserID: "u1", Roles: []string{"vendor"}}, roles: []string{"staff", "vendor"}},
		{name: "missing role", claims: domain.AuthClaims{UserID: "u1", Roles: []string{"staff"}}, roles: []string{"vendor"}, wantErr: domain.ErrForbidden, wantCode: CodeMissingRole},
		{name: "super admin", claims: domain.AuthClaims{UserID: "u1", Roles: []string{DefaultSuperAdminRole}}, roles: []string{"vendor"}},
		{name: "super admin only", claims: domain.AuthClaims{UserID: "u1", Roles: []string{"tenant_admin"}}, wantErr: domain.ErrForbidden, wantCode: CodeMissingRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.RequireAnyRole(tt.claims, tt.roles...)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantCode != "" {
				authz, ok := IsAuthzError(err)
				if !ok || authz.Code != tt.wantCode {
					t.Fatalf("expected code %s, got %v", tt.wantCode, err)
				}
			}
		})
	}
}

func TestRequireTenant(t *testing.T) {
	a := NewAuthorizer("platform_root")
	member := domain.ResolvedContext{TenantID: "t1", Auth: domain.AuthClaims{UserID: "u1"}}

	if err := a.RequireTenant(member, "t1"); err != nil {
		t.Fatalf("expected same tenant allowed, got %v", err)
	}
	if err := a.RequireTenant(member, ""); err != nil {
		t.Fatalf("expected any tenant allowed, got %v", err)
	}
	err := a.RequireTenant(member, "t2")
	if authz, ok := IsAuthzError(err); !ok || authz.Code != CodeTenantMismatch {
		t.Fatalf("expected tenant mismatch, got %v", err)
	}
	err = a.RequireTenant(domain.ResolvedContext{}, "")
	if authz, ok := IsAuthzError(err); !ok || authz.Code != CodeNoTenant {
		t.Fatalf("expected tenant required, got %v", err)
	}

	root := domain.ResolvedContext{Auth: domain.AuthClaims{UserID: "root", Roles: []string{"platform_root"}}}
	if err := a.RequireTenant(root, "t9"); err != nil {
		t.Fatalf("expected configured super admin to pass, got %v", err)
	}
}
