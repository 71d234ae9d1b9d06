package signedctx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cityos/internal/domain"

	"github.com/sirupsen/logrus"
)

const (
	HeaderTenantID   = "x-cityos-tenant-id"
	HeaderStoreID    = "x-cityos-store-id"
	HeaderPortalType = "x-cityos-portal-type"
	HeaderSignature  = "x-cityos-sig"
	HeaderTimestamp  = "x-cityos-timestamp"

	DefaultTolerance = 5 * time.Minute
)

type Headers = domain.SignedHeaders

func FromHTTP(h http.Header) Headers {
	return Headers{
		TenantID:   strings.TrimSpace(h.Get(HeaderTenantID)),
		StoreID:    strings.TrimSpace(h.Get(HeaderStoreID)),
		PortalType: strings.TrimSpace(h.Get(HeaderPortalType)),
		Signature:  strings.TrimSpace(h.Get(HeaderSignature)),
		Timestamp:  strings.TrimSpace(h.Get(HeaderTimestamp)),
	}
}

// Apply writes the bundle onto an outbound header set. Empty optional fields
// are omitted.
func Apply(h Headers, dst http.Header) {
	dst.Set(HeaderTenantID, h.TenantID)
	if h.StoreID != "" {
		dst.Set(HeaderStoreID, h.StoreID)
	}
	if h.PortalType != "" {
		dst.Set(HeaderPortalType, h.PortalType)
	}
	dst.Set(HeaderSignature, h.Signature)
	dst.Set(HeaderTimestamp, h.Timestamp)
}

type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
	logger    logrus.FieldLogger
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier returns a verifier keyed by secret. An empty secret yields a
// verifier that never matches.
func NewVerifier(secret []byte, opts ...Option) *Verifier {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	v := &Verifier{
		secret:    append([]byte(nil), secret...),
		tolerance: DefaultTolerance,
		now:       time.Now,
		logger:    discard,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks the bundle and returns the context it carries. A false result
// means "no match"; the reason is only logged.
func (v *Verifier) Verify(h Headers) (domain.ResolvedContext, bool) {
	if !v.Enabled() {
		return domain.ResolvedContext{}, false
	}
	if h.TenantID == "" || h.Signature == "" || h.Timestamp == "" {
		return domain.ResolvedContext{}, false
	}
	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		v.reject("timestamp_invalid", h)
		return domain.ResolvedContext{}, false
	}
	skew := v.now().UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance.Milliseconds() {
		v.reject("timestamp_out_of_window", h)
		return domain.ResolvedContext{}, false
	}
	expected := signature(v.secret, message(h.TenantID, h.StoreID, h.PortalType, h.Timestamp))
	if !hmac.Equal([]byte(h.Signature), []byte(expected)) {
		v.reject("signature_mismatch", h)
		return domain.ResolvedContext{}, false
	}

	portal := domain.PortalPublic
	if h.PortalType != "" {
		parsed, ok := domain.ParsePortalType(h.PortalType)
		if !ok {
			v.reject("portal_type_unknown", h)
			return domain.ResolvedContext{}, false
		}
		portal = parsed
	}
	return domain.ResolvedContext{
		TenantID:   h.TenantID,
		StoreID:    h.StoreID,
		PortalType: portal,
		ResolvedBy: domain.ResolvedBySignedHeaders,
	}, true
}

func (v *Verifier) reject(reason string, h Headers) {
	v.logger.WithFields(logrus.Fields{
		"reason":    reason,
		"tenant_id": h.TenantID,
	}).Warn("signed context headers rejected")
}

// signature is the lowercase hex HMAC-SHA256 of msg.
func signature(secret []byte, msg string) string {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(msg))
	return hex.EncodeToString(m.Sum(nil))
}

func message(tenantID, storeID, portalType, timestamp string) string {
	return tenantID + ":" + storeID + ":" + portalType + ":" + timestamp
}
