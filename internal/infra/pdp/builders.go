package pdp

import "cityos/internal/domain"

const (
	AnonymousPrincipalID = "anonymous"
	GuestRole            = "guest"
)

// Principal attribute keys presented to the PDP.
const (
	AttrCountryID      = "country_id"
	AttrScopeType      = "scope_type"
	AttrScopeID        = "scope_id"
	AttrCategoryID     = "category_id"
	AttrSubcategoryID  = "subcategory_id"
	AttrTenantID       = "tenant_id"
	AttrStoreID        = "store_id"
	AttrPortalType     = "portal_type"
	AttrResolvedBy     = "resolved_by"
	AttrExternalUserID = "external_user_id"
	AttrCreatedBy      = "created_by"
	AttrStatus         = "status"
)

// BuildPrincipal flattens a resolved context into a PDP principal. Absent
// identifiers are left out of the attribute map.
func BuildPrincipal(rc domain.ResolvedContext) domain.Principal {
	id := rc.Auth.UserID
	if id == "" {
		id = AnonymousPrincipalID
	}
	roles := orderedSet(rc.Auth.Roles)
	if len(roles) == 0 {
		roles = []string{GuestRole}
	}
	attr := map[string]any{
		AttrPortalType: string(rc.PortalType),
		AttrResolvedBy: string(rc.ResolvedBy),
	}
	setIfPresent(attr, AttrCountryID, rc.CountryID)
	setIfPresent(attr, AttrScopeType, string(rc.ScopeType))
	setIfPresent(attr, AttrScopeID, rc.ScopeID)
	setIfPresent(attr, AttrCategoryID, rc.CategoryID)
	setIfPresent(attr, AttrSubcategoryID, rc.SubcategoryID)
	setIfPresent(attr, AttrTenantID, rc.TenantID)
	setIfPresent(attr, AttrStoreID, rc.StoreID)
	setIfPresent(attr, AttrExternalUserID, rc.Auth.ExternalUserID)
	return domain.Principal{ID: id, Roles: roles, Attr: attr}
}

// BuildResource projects a document into a PDP resource. The document
// metadata is spread first; tenant_id, store_id, created_by and status are
// then taken from the document itself and cannot be overridden by metadata.
func BuildResource(kind string, doc domain.Document) domain.Resource {
	attr := make(map[string]any, len(doc.Metadata)+4)
	for k, v := range doc.Metadata {
		attr[k] = v
	}
	for _, key := range []string{AttrTenantID, AttrStoreID, AttrCreatedBy, AttrStatus} {
		delete(attr, key)
	}
	setIfPresent(attr, AttrTenantID, doc.TenantID)
	setIfPresent(attr, AttrStoreID, doc.StoreID)
	setIfPresent(attr, AttrCreatedBy, doc.CreatedBy)
	setIfPresent(attr, AttrStatus, doc.Status)
	return domain.Resource{Kind: kind, ID: doc.ID, Attr: attr}
}

func setIfPresent(attr map[string]any, key, value string) {
	if value != "" {
		attr[key] = value
	}
}

func orderedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
