package signedctx

import (
	"errors"
	"strconv"
	"time"
)

// Signer produces header bundles accepted by a Verifier holding the same
// secret. Gateways and BFFs in front of the platform use it.
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("context secret is required")
	}
	return &Signer{secret: append([]byte(nil), secret...)}, nil
}

func (s *Signer) Sign(tenantID, storeID, portalType string, at time.Time) Headers {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	return Headers{
		TenantID:   tenantID,
		StoreID:    storeID,
		PortalType: portalType,
		Signature:  signature(s.secret, message(tenantID, storeID, portalType, ts)),
		Timestamp:  ts,
	}
}
