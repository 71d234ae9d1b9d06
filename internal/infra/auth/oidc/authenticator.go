package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cityos/internal/config"
	"cityos/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	discoveryPath      = "/.well-known/openid-configuration"
)

// Authenticator validates RS256 bearer tokens against the issuer's JWKS and
// maps the claims onto domain.AuthClaims.
type Authenticator struct {
	issuer    string
	audience  string
	clockSkew time.Duration
	jwks      *jwksCache
	now       func() time.Time
}

type Option func(*Authenticator)

func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		if client != nil {
			a.jwks.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAuthenticator(cfg config.Config, opts ...Option) (*Authenticator, error) {
	issuer := strings.TrimSpace(cfg.OIDCIssuerURL)
	if issuer == "" {
		return nil, fmt.Errorf("%w: OIDC_ISSUER_URL is required", domain.ErrConfig)
	}
	jwksURL := strings.TrimSpace(cfg.OIDCJWKSURL)
	client := &http.Client{Timeout: defaultHTTPTimeout}
	if jwksURL == "" {
		discovered, err := discoverJWKSURL(context.Background(), client, issuer)
		if err != nil {
			return nil, err
		}
		jwksURL = discovered
	}
	auth := &Authenticator{
		issuer:    issuer,
		audience:  strings.TrimSpace(cfg.OIDCAudience),
		clockSkew: time.Duration(cfg.OIDCClockSkewSecs) * time.Second,
		jwks:      newJWKSCache(jwksURL, client),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth, nil
}

func (a *Authenticator) Authenticate(ctx context.Context, bearerToken string) (domain.AuthClaims, error) {
	if a == nil {
		return domain.AuthClaims{}, domain.ErrUnauthorized
	}
	tokenString := strings.TrimSpace(bearerToken)
	if tokenString == "" {
		return domain.AuthClaims{}, domain.ErrUnauthorized
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithLeeway(a.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.audience))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if typ, ok := t.Header["typ"].(string); ok && typ != "" && !strings.EqualFold(typ, "JWT") {
			return nil, errors.New("unexpected token type")
		}
		kid, _ := t.Header["kid"].(string)
		return a.jwks.getKey(ctx, kid)
	}, parserOpts...)
	if err != nil {
		return domain.AuthClaims{}, domain.ErrUnauthorized
	}
	out := claimsFromToken(claims)
	if out.UserID == "" {
		return domain.AuthClaims{}, domain.ErrUnauthorized
	}
	return out, nil
}

func discoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(issuer, "/")+discoveryPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("oidc discovery failed")
	}
	var payload struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.JWKSURI == "" {
		return "", errors.New("oidc discovery missing jwks_uri")
	}
	return payload.JWKSURI, nil
}

func claimsFromToken(claims jwt.MapClaims) domain.AuthClaims {
	out := domain.AuthClaims{}
	if subject, _ := claims["sub"].(string); subject != "" {
		out.UserID = subject
	}
	if external, _ := claims["external_user_id"].(string); external != "" {
		out.ExternalUserID = external
	}
	out.Roles = extractRoles(claims)
	return out
}

// extractRoles reads a flat "roles" claim plus Keycloak-style realm and
// client role lists.
func extractRoles(claims jwt.MapClaims) []string {
	var roles []string
	roles = appendStrings(roles, claims["roles"])
	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		roles = appendStrings(roles, realmAccess["roles"])
	}
	if resourceAccess, ok := claims["resource_access"].(map[string]any); ok {
		for _, rawClient := range resourceAccess {
			if client, ok := rawClient.(map[string]any); ok {
				roles = appendStrings(roles, client["roles"])
			}
		}
	}
	return dedupeStrings(roles)
}

func appendStrings(dst []string, raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return dst
	}
	for _, entry := range list {
		if s, ok := entry.(string); ok {
			dst = append(dst, s)
		}
	}
	return dst
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
