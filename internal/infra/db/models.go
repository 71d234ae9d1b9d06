package db

import "time"

const (
	domainKindCustom    = "custom"
	domainKindSubdomain = "subdomain"
)

type TenantModel struct {
	ID            string    `gorm:"type:text;primaryKey"`
	Name          string    `gorm:"not null"`
	Status        string    `gorm:"index;not null"`
	CountryID     string    `gorm:"type:text"`
	ScopeType     string    `gorm:"type:text"`
	ScopeID       string    `gorm:"type:text"`
	CategoryID    string    `gorm:"type:text"`
	SubcategoryID string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (TenantModel) TableName() string {
	return "tenants"
}

// TenantDomainModel registers one hostname for a tenant. A domain is unique
// within its kind across all tenants.
type TenantDomainModel struct {
	ID        int64     `gorm:"primaryKey"`
	TenantID  string    `gorm:"type:text;index;not null"`
	Kind      string    `gorm:"uniqueIndex:idx_tenant_domains_kind_domain;not null"`
	Domain    string    `gorm:"uniqueIndex:idx_tenant_domains_kind_domain;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (TenantDomainModel) TableName() string {
	return "tenant_domains"
}

type StoreModel struct {
	ID        string    `gorm:"type:text;primaryKey"`
	TenantID  string    `gorm:"type:text;index;not null"`
	Name      string    `gorm:"not null"`
	Status    string    `gorm:"index;not null"`
	CreatedBy string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (StoreModel) TableName() string {
	return "stores"
}
