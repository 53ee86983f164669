package goAccounts

import (
	"context"

	"github.com/MrEthical07/goAccounts/graph"
	internalmetrics "github.com/MrEthical07/goAccounts/internal/metrics"
)

// Protect wraps next so it only runs for authenticated sessions, and for
// administrators when req.RequireAdmin is set. Denied calls return
// ErrUnauthorized or ErrForbidden without calling next; allowed calls pass
// ctx, parent and args through and return next's result unchanged.
func Protect(next graph.FieldResolver, req Requirement) graph.FieldResolver {
	return protect(next, req, nil)
}

func protect(next graph.FieldResolver, req Requirement, m *internalmetrics.Metrics) graph.FieldResolver {
	return func(ctx context.Context, parent interface{}, args map[string]interface{}) (interface{}, error) {
		s, _ := SessionFromContext(ctx)
		if !s.Authenticated() {
			m.Inc(MetricGateUnauthorized)
			return nil, ErrUnauthorized
		}
		if req.RequireAdmin && !s.IsAdmin() {
			m.Inc(MetricGateForbidden)
			return nil, ErrForbidden
		}
		m.Inc(MetricGateAllowed)
		return next(ctx, parent, args)
	}
}

// AuthDirective implements @auth(requires: AuthRole). It is registered by
// the module returned from GraphQL.
func (e *Engine) AuthDirective(next graph.FieldResolver, args map[string]interface{}) (graph.FieldResolver, error) {
	req, err := requirementFromArgs(args)
	if err != nil {
		return nil, err
	}
	var m *internalmetrics.Metrics
	if e != nil {
		m = e.metrics
	}
	return protect(next, req, m), nil
}

func requirementFromArgs(args map[string]interface{}) (Requirement, error) {
	role, _ := args["requires"].(string)
	switch role {
	case "", RoleUser:
		return Requirement{}, nil
	case RoleAdmin:
		return Requirement{RequireAdmin: true}, nil
	}
	return Requirement{}, graph.NewError(graph.CodeBadUserInput, "unknown @auth role "+role)
}
