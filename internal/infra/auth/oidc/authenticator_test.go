package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"cityos/internal/config"
	"cityos/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://issuer.test/realms/cityos"

type testIDP struct {
	key    *rsa.PrivateKey
	kid    string
	server *httptest.Server
}

func newTestIDP(t *testing.T) *testIDP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	idp := &testIDP{key: key, kid: "kid-1"}
	idp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": idp.kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(idp.server.Close)
	return idp
}

func (i *testIDP) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.kid
	signed, err := tok.SignedString(i.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestAuthenticator(t *testing.T, idp *testIDP) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(config.Config{
		OIDCIssuerURL:     testIssuer,
		OIDCAudience:      "cityos",
		OIDCJWKSURL:       idp.server.URL,
		OIDCClockSkewSecs: 30,
	})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return auth
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":              testIssuer,
		"aud":              "cityos",
		"sub":              "user-1",
		"exp":              time.Now().Add(time.Hour).Unix(),
		"external_user_id": "crm-7",
		"roles":            []any{"vendor"},
		"realm_access":     map[string]any{"roles": []any{"super_admin", "vendor"}},
		"resource_access":  map[string]any{"cityos-web": map[string]any{"roles": []any{"staff"}}},
	}
}

func TestAuthenticateMapsClaims(t *testing.T) {
	idp := newTestIDP(t)
	auth := newTestAuthenticator(t, idp)

	claims, err := auth.Authenticate(context.Background(), idp.token(t, validClaims()))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.UserID != "user-1" || claims.ExternalUserID != "crm-7" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !reflect.DeepEqual(claims.Roles, []string{"vendor", "super_admin", "staff"}) {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
}

func TestAuthenticateRejectsInvalidTokens(t *testing.T) {
	idp := newTestIDP(t)
	auth := newTestAuthenticator(t, idp)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.test"
	wrongAudience := validClaims()
	wrongAudience["aud"] = "other"
	noExp := validClaims()
	delete(noExp, "exp")
	noSubject := validClaims()
	delete(noSubject, "sub")

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	forged.Header["kid"] = idp.kid
	forgedToken, err := forged.SignedString(other)
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	hsToken, err := hs.SignedString([]byte("shared"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"expired":        idp.token(t, expired),
		"wrong issuer":   idp.token(t, wrongIssuer),
		"wrong audience": idp.token(t, wrongAudience),
		"missing exp":    idp.token(t, noExp),
		"missing sub":    idp.token(t, noSubject),
		"forged":         forgedToken,
		"hs256":          hsToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.Authenticate(context.Background(), token); !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestNewAuthenticatorDiscoversJWKS(t *testing.T) {
	idp := newTestIDP(t)
	discovery := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != discoveryPath {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"jwks_uri": idp.server.URL})
	}))
	t.Cleanup(discovery.Close)

	auth, err := NewAuthenticator(config.Config{OIDCIssuerURL: discovery.URL})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	claims := validClaims()
	claims["iss"] = discovery.URL
	delete(claims, "aud")
	if _, err := auth.Authenticate(context.Background(), idp.token(t, claims)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestNewAuthenticatorRequiresIssuer(t *testing.T) {
	if _, err := NewAuthenticator(config.Config{}); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
