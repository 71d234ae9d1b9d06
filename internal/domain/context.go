package domain

import "strings"

// PortalType is the class of application surface a request originates from.
type PortalType string

const (
	PortalPublic      PortalType = "public"
	PortalTenantAdmin PortalType = "tenant_admin"
	PortalVendor      PortalType = "vendor"
	PortalB2B         PortalType = "b2b"
	PortalCityPartner PortalType = "city_partner"
	PortalOperator    PortalType = "operator"
)

var portalTypes = map[PortalType]struct{}{
	PortalPublic:      {},
	PortalTenantAdmin: {},
	PortalVendor:      {},
	PortalB2B:         {},
	PortalCityPartner: {},
	PortalOperator:    {},
}

func ParsePortalType(value string) (PortalType, bool) {
	p := PortalType(strings.TrimSpace(value))
	if _, ok := portalTypes[p]; !ok {
		return "", false
	}
	return p, true
}

// ResolvedBy names the signal source that produced a ResolvedContext.
type ResolvedBy string

const (
	ResolvedBySignedHeaders ResolvedBy = "signed_headers"
	ResolvedByCustomDomain  ResolvedBy = "custom_domain"
	ResolvedBySubdomain     ResolvedBy = "subdomain"
	ResolvedByCookie        ResolvedBy = "cookie"
	ResolvedByNone          ResolvedBy = "none"
)

type ScopeType string

const (
	ScopeTheme ScopeType = "theme"
	ScopeCity  ScopeType = "city"
)

// AuthClaims are identity claims produced by the authentication layer and
// merged into the context after resolution.
type AuthClaims struct {
	UserID         string   `json:"user_id,omitempty"`
	Roles          []string `json:"roles"`
	ExternalUserID string   `json:"external_user_id,omitempty"`
}

func (a AuthClaims) HasRole(role string) bool {
	if role == "" {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ResolvedContext is the tenant/store/portal scope of a single request. It is
// passed by value and must not be cached or shared across requests. Empty
// string fields mean "absent".
type ResolvedContext struct {
	CountryID     string     `json:"country_id,omitempty"`
	ScopeType     ScopeType  `json:"scope_type,omitempty"`
	ScopeID       string     `json:"scope_id,omitempty"`
	CategoryID    string     `json:"category_id,omitempty"`
	SubcategoryID string     `json:"subcategory_id,omitempty"`
	TenantID      string     `json:"tenant_id,omitempty"`
	StoreID       string     `json:"store_id,omitempty"`
	PortalType    PortalType `json:"portal_type"`
	Auth          AuthClaims `json:"auth"`
	ResolvedBy    ResolvedBy `json:"resolved_by"`
}

func UnresolvedContext(auth AuthClaims) ResolvedContext {
	return ResolvedContext{
		PortalType: PortalPublic,
		Auth:       cloneClaims(auth),
		ResolvedBy: ResolvedByNone,
	}
}

func (c ResolvedContext) HasTenant() bool {
	return c.TenantID != ""
}

// WithAuth returns a copy of c carrying auth. The role slice is copied so the
// caller's claims cannot alias the context.
func (c ResolvedContext) WithAuth(auth AuthClaims) ResolvedContext {
	c.Auth = cloneClaims(auth)
	return c
}

func cloneClaims(auth AuthClaims) AuthClaims {
	out := auth
	if auth.Roles != nil {
		out.Roles = append([]string(nil), auth.Roles...)
	} else {
		out.Roles = []string{}
	}
	return out
}

// SignedHeaders is the signed context bundle forwarded by trusted upstreams
// (gateway, BFF) holding the shared context secret.
type SignedHeaders struct {
	TenantID   string
	StoreID    string
	PortalType string
	Signature  string
	Timestamp  string
}

func (h SignedHeaders) Present() bool {
	return h.TenantID != "" || h.Signature != "" || h.Timestamp != ""
}
