package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"pawsit/agent/internal/session"
)

// RegoPolicy decides destinations with a compiled Rego module. The module must
// define data.pawsit.routing.destination as a string.
type RegoPolicy struct {
	query rego.PreparedEvalQuery
}

// NewRegoPolicy compiles module, or the built-in routing policy when module is blank.
func NewRegoPolicy(ctx context.Context, module string) (*RegoPolicy, error) {
	if strings.TrimSpace(module) == "" {
		module = defaultRoutingPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"routing.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile routing policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(routingQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare routing policy: %w", err)
	}
	return &RegoPolicy{query: q}, nil
}

// LoadRegoPolicy reads a Rego module from path. An empty path selects the built-in policy.
func LoadRegoPolicy(ctx context.Context, path string) (*RegoPolicy, error) {
	if path == "" {
		return NewRegoPolicy(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing policy: %w", err)
	}
	return NewRegoPolicy(ctx, string(b))
}

// Decide evaluates the policy for facts. The resolver falls back to its static
// table when this returns an error or an unknown destination.
func (p *RegoPolicy) Decide(ctx context.Context, facts session.Facts) (session.Destination, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(buildInput(facts)))
	if err != nil {
		return "", fmt.Errorf("eval routing policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", fmt.Errorf("routing policy returned no result")
	}
	s, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("routing policy returned %T, want string", rs[0].Expressions[0].Value)
	}
	return session.Destination(s), nil
}

// HealthCheck evaluates a signed-out input and expects a valid destination.
func (p *RegoPolicy) HealthCheck(ctx context.Context) error {
	d, err := p.Decide(ctx, session.Facts{})
	if err != nil {
		return err
	}
	if !d.Valid() {
		return fmt.Errorf("routing policy returned unknown destination %q", d)
	}
	return nil
}
