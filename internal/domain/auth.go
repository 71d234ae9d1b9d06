package domain

import "context"

// Principal is the actor presented to the policy decision point.
type Principal struct {
	ID    string         `json:"id"`
	Roles []string       `json:"roles"`
	Attr  map[string]any `json:"attr"`
}

// Resource is the target of an action presented to the policy decision point.
type Resource struct {
	Kind string         `json:"kind"`
	ID   string         `json:"id"`
	Attr map[string]any `json:"attr"`
}

// Document is the subset of a domain record used to build a Resource.
type Document struct {
	ID        string
	TenantID  string
	StoreID   string
	CreatedBy string
	Status    string
	Metadata  map[string]any
}

type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// PolicyDecision maps every requested action to an effect.
type PolicyDecision map[string]Effect

func (d PolicyDecision) Allowed(action string) bool {
	return d[action] == EffectAllow
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (AuthClaims, error)
}
