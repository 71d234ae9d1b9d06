package domain

import (
	"context"
	"time"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

func ParseTenantStatus(value string) (TenantStatus, bool) {
	switch TenantStatus(value) {
	case TenantActive, TenantInactive, TenantSuspended:
		return TenantStatus(value), true
	}
	return "", false
}

type Tenant struct {
	ID            string
	Name          string
	Status        TenantStatus
	CountryID     string
	ScopeType     ScopeType
	ScopeID       string
	CategoryID    string
	SubcategoryID string
	CustomDomains []string
	Subdomains    []string
	CreatedAt     time.Time
}

type Store struct {
	ID        string
	TenantID  string
	Name      string
	Status    string
	CreatedBy string
	CreatedAt time.Time
}

// TenantLookup answers hostname-based tenant queries. Both methods return
// ErrNotFound when no active tenant matches.
type TenantLookup interface {
	FindActiveByCustomDomain(ctx context.Context, domain string) (*Tenant, error)
	FindActiveBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
}
