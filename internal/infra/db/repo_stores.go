package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cityos/internal/domain"

	"gorm.io/gorm"
)

var storeFilterColumns = map[string]string{
	"tenant_id":  "tenant_id",
	"store_id":   "id",
	"status":     "status",
	"created_by": "created_by",
}

type StoreRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

// List returns the stores matching filter, oldest first.
func (r *StoreRepository) List(ctx context.Context, filter domain.Filter) ([]domain.Store, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q, err := applyFilter(r.db.WithContext(ctx).Model(&StoreModel{}), filter, storeFilterColumns)
	if err != nil {
		return nil, err
	}
	var models []StoreModel
	if err := q.Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Store, 0, len(models))
	for _, m := range models {
		out = append(out, modelToStore(m))
	}
	return out, nil
}

func (r *StoreRepository) Get(ctx context.Context, storeID string) (*domain.Store, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model StoreModel
	if err := r.db.WithContext(ctx).Take(&model, "id = ?", storeID).Error; err != nil {
		return nil, mapError(err)
	}
	s := modelToStore(model)
	return &s, nil
}

func (r *StoreRepository) Create(ctx context.Context, store domain.Store) (domain.Store, error) {
	if r.db == nil {
		return domain.Store{}, errDBUnavailable
	}
	if strings.TrimSpace(store.TenantID) == "" || strings.TrimSpace(store.Name) == "" {
		return domain.Store{}, fmt.Errorf("%w: store tenant and name are required", domain.ErrInvalidArgument)
	}
	if store.ID == "" {
		store.ID = newID()
	}
	if store.Status == "" {
		store.Status = "active"
	}
	if store.CreatedAt.IsZero() {
		store.CreatedAt = time.Now().UTC()
	}
	model := StoreModel{
		ID:        store.ID,
		TenantID:  store.TenantID,
		Name:      store.Name,
		Status:    store.Status,
		CreatedBy: store.CreatedBy,
		CreatedAt: store.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Store{}, mapError(err)
	}
	return store, nil
}

func modelToStore(m StoreModel) domain.Store {
	return domain.Store{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Name:      m.Name,
		Status:    m.Status,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}
}
