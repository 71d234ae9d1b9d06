package http

import (
	"errors"
	"net/http"
	"strings"

	"cityos/internal/domain"
	"cityos/internal/infra/auth/rbac"
	"cityos/internal/infra/pdp"

	"github.com/gin-gonic/gin"
)

const storeResourceKind = "store"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type contextResponse struct {
	RequestID string                 `json:"request_id"`
	Context   domain.ResolvedContext `json:"context"`
}

type authzCheckRequest struct {
	Resource domain.Resource `json:"resource"`
	Actions  []string        `json:"actions"`
}

type authzCheckResponse struct {
	Decisions domain.PolicyDecision `json:"decisions"`
}

type tenantRequest struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	CountryID     string   `json:"country_id"`
	ScopeType     string   `json:"scope_type"`
	ScopeID       string   `json:"scope_id"`
	CategoryID    string   `json:"category_id"`
	SubcategoryID string   `json:"subcategory_id"`
	CustomDomains []string `json:"custom_domains"`
	Subdomains    []string `json:"subdomains"`
}

type tenantResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	CountryID     string   `json:"country_id,omitempty"`
	ScopeType     string   `json:"scope_type,omitempty"`
	ScopeID       string   `json:"scope_id,omitempty"`
	CategoryID    string   `json:"category_id,omitempty"`
	SubcategoryID string   `json:"subcategory_id,omitempty"`
	CustomDomains []string `json:"custom_domains"`
	Subdomains    []string `json:"subdomains"`
}

type tenantStatusRequest struct {
	Status string `json:"status"`
}

type storeRequest struct {
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

type storeResponse struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleContext(c *gin.Context) {
	c.JSON(http.StatusOK, contextResponse{
		RequestID: c.GetString(requestIDKey),
		Context:   getResolvedContext(c),
	})
}

func (s *Server) handleAuthzCheck(c *gin.Context) {
	var req authzCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if strings.TrimSpace(req.Resource.Kind) == "" || len(req.Actions) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "resource.kind and actions are required")
		return
	}
	decision := s.access.Decide(c.Request.Context(), getResolvedContext(c), req.Resource, req.Actions)
	c.JSON(http.StatusOK, authzCheckResponse{Decisions: decision})
}

func (s *Server) handleListStores(c *gin.Context) {
	if s.stores == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "store registry unavailable")
		return
	}
	rc := getResolvedContext(c)
	stores, err := s.stores.List(c.Request.Context(), s.access.ScopeFilter(rc))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]storeResponse, 0, len(stores))
	for _, st := range stores {
		out = append(out, buildStoreResponse(st))
	}
	c.JSON(http.StatusOK, gin.H{"stores": out})
}

func (s *Server) handleGetStore(c *gin.Context) {
	if s.stores == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "store registry unavailable")
		return
	}
	store, err := s.stores.Get(c.Request.Context(), c.Param("store_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resource := pdp.BuildResource(storeResourceKind, storeDocument(*store))
	if !s.access.Can(c.Request.Context(), getResolvedContext(c), resource, "read") {
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
		return
	}
	c.JSON(http.StatusOK, buildStoreResponse(*store))
}

func (s *Server) handleCreateStore(c *gin.Context) {
	if s.stores == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "store registry unavailable")
		return
	}
	rc := getResolvedContext(c)
	if err := s.access.RequireTenant(rc); err != nil {
		writeAuthzError(c, err)
		return
	}
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "name is required")
		return
	}
	store := domain.Store{
		TenantID:  rc.TenantID,
		Name:      strings.TrimSpace(req.Name),
		Status:    req.Status,
		CreatedBy: rc.Auth.UserID,
	}
	if store.Status == "" {
		store.Status = "active"
	}
	doc := storeDocument(store)
	doc.Metadata = req.Metadata
	if !s.access.Can(c.Request.Context(), rc, pdp.BuildResource(storeResourceKind, doc), "create") {
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
		return
	}
	created, err := s.stores.Create(c.Request.Context(), store)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildStoreResponse(created))
}

func (s *Server) handleCreateTenant(c *gin.Context) {
	if err := s.access.RequireRole(getResolvedContext(c)); err != nil {
		writeAuthzError(c, err)
		return
	}
	if s.tenants == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "tenant registry unavailable")
		return
	}
	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "name is required")
		return
	}
	tenant := domain.Tenant{
		ID:            strings.TrimSpace(req.ID),
		Name:          strings.TrimSpace(req.Name),
		CountryID:     req.CountryID,
		ScopeType:     domain.ScopeType(req.ScopeType),
		ScopeID:       req.ScopeID,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		CustomDomains: req.CustomDomains,
		Subdomains:    req.Subdomains,
	}
	if req.Status != "" {
		status, ok := domain.ParseTenantStatus(req.Status)
		if !ok {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown tenant status")
			return
		}
		tenant.Status = status
	}
	switch tenant.ScopeType {
	case "", domain.ScopeTheme, domain.ScopeCity:
	default:
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "scope_type must be theme or city")
		return
	}
	created, err := s.tenants.Create(c.Request.Context(), tenant)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildTenantResponse(created))
}

func (s *Server) handleGetTenant(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	if err := s.access.RequireTenantAccess(getResolvedContext(c), tenantID); err != nil {
		writeAuthzError(c, err)
		return
	}
	if s.tenants == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "tenant registry unavailable")
		return
	}
	tenant, err := s.tenants.GetByID(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildTenantResponse(*tenant))
}

func (s *Server) handleUpdateTenantStatus(c *gin.Context) {
	if err := s.access.RequireRole(getResolvedContext(c)); err != nil {
		writeAuthzError(c, err)
		return
	}
	if s.tenants == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "tenant registry unavailable")
		return
	}
	var req tenantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	status, ok := domain.ParseTenantStatus(req.Status)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown tenant status")
		return
	}
	tenantID := c.Param("tenant_id")
	if err := s.tenants.UpdateStatus(c.Request.Context(), tenantID, status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "status": string(status)})
}

func storeDocument(s domain.Store) domain.Document {
	return domain.Document{
		ID:        s.ID,
		TenantID:  s.TenantID,
		StoreID:   s.ID,
		CreatedBy: s.CreatedBy,
		Status:    s.Status,
	}
}

func buildStoreResponse(s domain.Store) storeResponse {
	out := storeResponse{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Name:      s.Name,
		Status:    s.Status,
		CreatedBy: s.CreatedBy,
	}
	if !s.CreatedAt.IsZero() {
		out.CreatedAt = s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

func buildTenantResponse(t domain.Tenant) tenantResponse {
	out := tenantResponse{
		ID:            t.ID,
		Name:          t.Name,
		Status:        string(t.Status),
		CountryID:     t.CountryID,
		ScopeType:     string(t.ScopeType),
		ScopeID:       t.ScopeID,
		CategoryID:    t.CategoryID,
		SubcategoryID: t.SubcategoryID,
		CustomDomains: t.CustomDomains,
		Subdomains:    t.Subdomains,
	}
	if out.CustomDomains == nil {
		out.CustomDomains = []string{}
	}
	if out.Subdomains == nil {
		out.Subdomains = []string{}
	}
	return out
}

// writeError maps domain sentinels to status codes. Messages for
// unexpected errors are generic.
func writeError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, domain.ErrConflict):
		status, code, message = http.StatusConflict, "CONFLICT", "already exists"
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code, message = http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		status, code, message = http.StatusForbidden, "FORBIDDEN", "forbidden"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func writeAuthzError(c *gin.Context, err error) {
	if authz, ok := rbac.IsAuthzError(err); ok {
		writeErrorCode(c, http.StatusForbidden, authz.Code, "forbidden")
		return
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
}
