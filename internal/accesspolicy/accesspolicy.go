package accesspolicy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/open-policy-agent/opa/rego"
)

// Gate evaluates an optional rego policy before saved-object writes reach the
// store. With no module configured every request is allowed; operators opt in
// by pointing DASHVAULT_ACCESS_POLICY_FILE at a module defining
// data.dashvault.allow.
type Gate struct {
	query *rego.PreparedEvalQuery
}

// Input carries the request attributes the policy can reason about.
type Input struct {
	Subject     string   `json:"subject"`
	WorkspaceID string   `json:"workspace_id,omitempty"`
	Operation   string   `json:"operation"`
	Types       []string `json:"types,omitempty"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed     bool
	Reasons     []string
	EvaluatedAt time.Time
}

// New compiles the module at path. An empty path yields an allow-all gate.
func New(ctx context.Context, path string) (*Gate, error) {
	if path == "" {
		return &Gate{}, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("access policy: read %s: %w", path, err)
	}
	q, err := rego.New(
		rego.Query("data.dashvault.allow"),
		rego.Module("dashvault.rego", string(src)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("access policy: compile %s: %w", path, err)
	}
	return &Gate{query: &q}, nil
}

// Evaluate runs the prepared query against in. Evaluation errors deny.
func (g *Gate) Evaluate(ctx context.Context, in Input) Decision {
	now := time.Now()
	if g.query == nil {
		return Decision{Allowed: true, EvaluatedAt: now}
	}
	rs, err := g.query.Eval(ctx, rego.EvalInput(map[string]any{
		"subject":      in.Subject,
		"workspace_id": in.WorkspaceID,
		"operation":    in.Operation,
		"types":        in.Types,
	}))
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{Allowed: false, Reasons: []string{"policy_error"}, EvaluatedAt: now}
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return Decision{Allowed: false, Reasons: []string{"policy_error"}, EvaluatedAt: now}
	}
	if !allowed {
		return Decision{Allowed: false, Reasons: []string{"denied_by_policy"}, EvaluatedAt: now}
	}
	return Decision{Allowed: true, EvaluatedAt: now}
}
