// Package policy evaluates request authorization with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine for scope-based request authorization.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.attendance_authz.decision"),
		rego.Module("attendance_authz.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input describes one request to authorize.
type Input struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Scope    string `json:"scope"`
	WorkerID string `json:"worker_id"`
}

// Evaluate checks the authorization policy. Returns "allow" or "deny".
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so an empty result means the
		// module itself is broken.
		return "deny", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "deny", nil
}

// DefaultPolicy is the default authorization policy: session and pause
// endpoints require the attendance scope, everything else under /v1 is
// denied unless the scope covers it.
const DefaultPolicy = `
package attendance_authz

default decision = "deny"

decision = "allow" {
	input.scope == "attendance"
}

decision = "allow" {
	input.scope == "supervisor"
	input.method == "GET"
}
`
