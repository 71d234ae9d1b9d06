package policyopa

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cityos/internal/infra/pdp"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const effectsQuery = "data.cityos.authz.effects"

//go:embed policy/authz.rego
var defaultPolicy string

// Engine evaluates PDP check requests against a Rego policy exposing
// data.cityos.authz.effects as an action -> effect object.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine loads the policy files under policyPath, or the embedded default
// policy when policyPath is empty.
func NewEngine(ctx context.Context, policyPath string) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	opts := []func(*rego.Rego){
		rego.Query(effectsQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}
	if strings.TrimSpace(policyPath) == "" {
		opts = append(opts, rego.Module("authz.rego", defaultPolicy))
	} else {
		opts = append(opts, rego.Load([]string{policyPath}, nil))
	}
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

// Check answers a PDP request. Every requested action gets an effect; an
// action the policy does not mention is denied.
func (e *Engine) Check(ctx context.Context, req pdp.CheckRequest) (pdp.CheckResponse, error) {
	if e == nil {
		return pdp.CheckResponse{}, errors.New("policy engine is nil")
	}
	if req.Principal.Roles == nil {
		req.Principal.Roles = []string{}
	}
	if req.Principal.Attr == nil {
		req.Principal.Attr = map[string]any{}
	}
	if req.Resource.Attr == nil {
		req.Resource.Attr = map[string]any{}
	}
	if req.Actions == nil {
		req.Actions = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(req))
	if err != nil {
		return pdp.CheckResponse{}, err
	}
	effects := make(map[string]string, len(req.Actions))
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		raw, ok := results[0].Expressions[0].Value.(map[string]any)
		if !ok {
			return pdp.CheckResponse{}, fmt.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
		}
		for action, v := range raw {
			if s, ok := v.(string); ok {
				effects[action] = s
			}
		}
	}
	for _, action := range req.Actions {
		effects[action] = pdp.EffectOf(effects[action] == pdp.EffectAllow)
	}
	return pdp.CheckResponse{
		RequestID: req.RequestID,
		Results: []pdp.CheckResult{{
			Resource: pdp.ResultResource{ID: req.Resource.ID, Kind: req.Resource.Kind},
			Actions:  effects,
		}},
	}, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
