package pdp

import "cityos/internal/domain"

// Wire format of POST {PDP_URL}/api/check.

const (
	CheckPath = "/api/check"

	EffectAllow = "EFFECT_ALLOW"
	EffectDeny  = "EFFECT_DENY"
)

type CheckRequest struct {
	RequestID string           `json:"requestId"`
	Principal domain.Principal `json:"principal"`
	Resource  domain.Resource  `json:"resource"`
	Actions   []string         `json:"actions"`
}

type CheckResponse struct {
	RequestID string        `json:"requestId"`
	Results   []CheckResult `json:"results"`
}

type CheckResult struct {
	Resource ResultResource    `json:"resource"`
	Actions  map[string]string `json:"actions"`
}

type ResultResource struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

func EffectOf(allowed bool) string {
	if allowed {
		return EffectAllow
	}
	return EffectDeny
}
