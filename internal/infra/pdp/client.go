package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cityos/internal/config"
	"cityos/internal/domain"
	"cityos/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
)

type FallbackMode string

const (
	FallbackSuperAdminRead FallbackMode = config.FallbackSuperAdminRead
	FallbackDenyAll        FallbackMode = config.FallbackDenyAll
)

var DefaultReadActions = []string{"read", "view", "list", "get"}

type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	FallbackMode   FallbackMode
	SuperAdminRole string
	// ReadActions enumerates the action names the super_admin_read fallback
	// may allow. Matching is exact.
	ReadActions []string
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		BaseURL:        cfg.PDPURL,
		APIKey:         cfg.PDPAPIKey,
		Timeout:        cfg.PDPTimeout(),
		FallbackMode:   FallbackMode(cfg.PDPFallbackMode),
		SuperAdminRole: cfg.SuperAdminRole,
		ReadActions:    cfg.PDPFallbackReadActions,
	}
}

// Client asks the external PDP for per-action decisions. It never returns an
// error: any PDP failure is answered by the configured fallback policy.
type Client struct {
	baseURL        string
	apiKey         string
	timeout        time.Duration
	fallbackMode   FallbackMode
	superAdminRole string
	readActions    map[string]struct{}

	httpClient *http.Client
	logger     logrus.FieldLogger
	metrics    metrics.Recorder
	requestID  func() string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(c *Client) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

func WithRequestID(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.requestID = fn
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		timeout:        cfg.Timeout,
		fallbackMode:   cfg.FallbackMode,
		superAdminRole: cfg.SuperAdminRole,
		readActions:    make(map[string]struct{}),
		httpClient:     &http.Client{},
		logger:         discard,
		metrics:        metrics.NewNoop(),
		requestID:      uuid.NewString,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.fallbackMode == "" {
		c.fallbackMode = FallbackSuperAdminRead
	}
	readActions := cfg.ReadActions
	if readActions == nil {
		readActions = DefaultReadActions
	}
	for _, a := range readActions {
		c.readActions[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAction reports whether a single action is allowed.
func (c *Client) CheckAction(ctx context.Context, principal domain.Principal, resource domain.Resource, action string) bool {
	return c.CheckActions(ctx, principal, resource, []string{action}).Allowed(action)
}

// CheckActions sends one batched request for all actions. The returned
// decision is keyed by each action exactly as requested and always has an
// entry for every one of them. Blank action names are never sent and are
// denied.
func (c *Client) CheckActions(ctx context.Context, principal domain.Principal, resource domain.Resource, actions []string) domain.PolicyDecision {
	requested := uniqueActions(actions)
	if len(requested) == 0 {
		return domain.PolicyDecision{}
	}
	decision := make(domain.PolicyDecision, len(requested))
	sendable := make([]string, 0, len(requested))
	for _, action := range requested {
		if strings.TrimSpace(action) == "" {
			decision[action] = domain.EffectDeny
			continue
		}
		sendable = append(sendable, action)
	}
	if len(sendable) == 0 {
		return decision
	}
	requestID := c.requestID()

	effects, err := c.call(ctx, requestID, principal, resource, sendable)
	if err != nil {
		reason := failureReason(err)
		c.logger.WithFields(logrus.Fields{
			"request_id":    requestID,
			"reason":        reason,
			"resource_kind": resource.Kind,
			"error":         err.Error(),
		}).Warn("pdp unavailable, applying fallback policy")
		c.metrics.RecordFallback(reason)
		for action, effect := range c.fallback(principal, sendable) {
			decision[action] = effect
		}
		return decision
	}

	for _, action := range sendable {
		effect := domain.EffectDeny
		if effects[action] == EffectAllow {
			effect = domain.EffectAllow
		}
		decision[action] = effect
		c.metrics.RecordDecision(string(effect), "pdp")
	}
	return decision
}

func (c *Client) call(ctx context.Context, requestID string, principal domain.Principal, resource domain.Resource, actions []string) (map[string]string, error) {
	if c.baseURL == "" {
		return nil, &callError{reason: "unconfigured", err: errors.New("pdp base URL is not configured")}
	}
	body, err := json.Marshal(CheckRequest{
		RequestID: requestID,
		Principal: normalizePrincipal(principal),
		Resource:  normalizeResource(resource),
		Actions:   actions,
	})
	if err != nil {
		return nil, &callError{reason: "encode", err: fmt.Errorf("marshal check request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CheckPath, bytes.NewReader(body))
	if err != nil {
		return nil, &callError{reason: "encode", err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(err, context.Canceled) {
			reason = "canceled"
		}
		return nil, &callError{reason: reason, err: fmt.Errorf("pdp check: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &callError{reason: "status", err: fmt.Errorf("pdp check failed: status %d", resp.StatusCode)}
	}

	var payload CheckResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		reason := "decode"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return nil, &callError{reason: reason, err: fmt.Errorf("decode check response: %w", err)}
	}
	if len(payload.Results) == 0 || payload.Results[0].Actions == nil {
		return nil, &callError{reason: "empty", err: errors.New("pdp returned no results")}
	}
	effects := payload.Results[0].Actions
	for _, action := range actions {
		if _, ok := effects[action]; !ok {
			return nil, &callError{reason: "incomplete", err: fmt.Errorf("pdp result missing action %q", action)}
		}
	}
	return effects, nil
}

func (c *Client) fallback(principal domain.Principal, actions []string) domain.PolicyDecision {
	superAdmin := c.fallbackMode == FallbackSuperAdminRead && hasRole(principal.Roles, c.superAdminRole)
	decision := make(domain.PolicyDecision, len(actions))
	for _, action := range actions {
		effect := domain.EffectDeny
		if superAdmin && c.isReadAction(action) {
			effect = domain.EffectAllow
		}
		decision[action] = effect
		c.metrics.RecordDecision(string(effect), "fallback")
	}
	return decision
}

func (c *Client) isReadAction(action string) bool {
	_, ok := c.readActions[action]
	return ok
}

type callError struct {
	reason string
	err    error
}

func (e *callError) Error() string {
	return e.err.Error()
}

func (e *callError) Unwrap() error {
	return e.err
}

func failureReason(err error) string {
	var ce *callError
	if errors.As(err, &ce) {
		return ce.reason
	}
	return "unknown"
}

// uniqueActions drops exact duplicates and keeps the first-seen order.
func uniqueActions(actions []string) []string {
	seen := make(map[string]struct{}, len(actions))
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func hasRole(roles []string, role string) bool {
	if role == "" {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func normalizePrincipal(p domain.Principal) domain.Principal {
	if p.Roles == nil {
		p.Roles = []string{}
	}
	if p.Attr == nil {
		p.Attr = map[string]any{}
	}
	return p
}

func normalizeResource(r domain.Resource) domain.Resource {
	if r.Attr == nil {
		r.Attr = map[string]any{}
	}
	return r
}
