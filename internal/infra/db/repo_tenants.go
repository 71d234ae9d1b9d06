package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cityos/internal/domain"

	"gorm.io/gorm"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create registers the tenant and its hostnames in one transaction. A
// hostname already owned by any tenant yields domain.ErrConflict.
func (r *TenantRepository) Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error) {
	if r.db == nil {
		return domain.Tenant{}, errDBUnavailable
	}
	if strings.TrimSpace(tenant.Name) == "" {
		return domain.Tenant{}, fmt.Errorf("%w: tenant name is required", domain.ErrInvalidArgument)
	}
	if tenant.ID == "" {
		tenant.ID = newID()
	}
	if tenant.Status == "" {
		tenant.Status = domain.TenantActive
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	tenant.CustomDomains = normalizeDomains(tenant.CustomDomains)
	tenant.Subdomains = normalizeDomains(tenant.Subdomains)

	model := tenantToModel(tenant)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		domains := domainModels(tenant)
		if len(domains) == 0 {
			return nil
		}
		return tx.Create(&domains).Error
	})
	if err != nil {
		return domain.Tenant{}, mapError(err)
	}
	return tenant, nil
}

func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TenantModel
	if err := r.db.WithContext(ctx).Take(&model, "id = ?", tenantID).Error; err != nil {
		return nil, mapError(err)
	}
	var domains []TenantDomainModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("id ASC").Find(&domains).Error; err != nil {
		return nil, mapError(err)
	}
	t := modelToTenant(model)
	for _, d := range domains {
		switch d.Kind {
		case domainKindCustom:
			t.CustomDomains = append(t.CustomDomains, d.Domain)
		case domainKindSubdomain:
			t.Subdomains = append(t.Subdomains, d.Domain)
		}
	}
	return &t, nil
}

func (r *TenantRepository) FindActiveByCustomDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	return r.findActive(ctx, domainKindCustom, host)
}

func (r *TenantRepository) FindActiveBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	return r.findActive(ctx, domainKindSubdomain, subdomain)
}

func (r *TenantRepository) findActive(ctx context.Context, kind, name string) (*domain.Tenant, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, domain.ErrNotFound
	}
	var model TenantModel
	err := r.db.WithContext(ctx).
		Joins("JOIN tenant_domains ON tenant_domains.tenant_id = tenants.id").
		Where("tenant_domains.kind = ? AND tenant_domains.domain = ? AND tenants.status = ?", kind, name, string(domain.TenantActive)).
		Order("tenants.created_at ASC").
		Limit(1).
		Take(&model).Error
	if err != nil {
		return nil, mapError(err)
	}
	t := modelToTenant(model)
	return &t, nil
}

func (r *TenantRepository) UpdateStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if _, ok := domain.ParseTenantStatus(string(status)); !ok {
		return fmt.Errorf("%w: unknown tenant status %q", domain.ErrInvalidArgument, status)
	}
	res := r.db.WithContext(ctx).Model(&TenantModel{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func tenantToModel(t domain.Tenant) TenantModel {
	return TenantModel{
		ID:            t.ID,
		Name:          t.Name,
		Status:        string(t.Status),
		CountryID:     t.CountryID,
		ScopeType:     string(t.ScopeType),
		ScopeID:       t.ScopeID,
		CategoryID:    t.CategoryID,
		SubcategoryID: t.SubcategoryID,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.CreatedAt,
	}
}

func modelToTenant(m TenantModel) domain.Tenant {
	return domain.Tenant{
		ID:            m.ID,
		Name:          m.Name,
		Status:        domain.TenantStatus(m.Status),
		CountryID:     m.CountryID,
		ScopeType:     domain.ScopeType(m.ScopeType),
		ScopeID:       m.ScopeID,
		CategoryID:    m.CategoryID,
		SubcategoryID: m.SubcategoryID,
		CreatedAt:     m.CreatedAt,
	}
}

func domainModels(t domain.Tenant) []TenantDomainModel {
	out := make([]TenantDomainModel, 0, len(t.CustomDomains)+len(t.Subdomains))
	for _, d := range t.CustomDomains {
		out = append(out, TenantDomainModel{TenantID: t.ID, Kind: domainKindCustom, Domain: d, CreatedAt: t.CreatedAt})
	}
	for _, d := range t.Subdomains {
		out = append(out, TenantDomainModel{TenantID: t.ID, Kind: domainKindSubdomain, Domain: d, CreatedAt: t.CreatedAt})
	}
	return out
}
