// Package gateway is the thin façade between request handlers and the core:
// it authorizes, resolves the live adapter, checks the engine's capability
// set, and applies the execution timeout.
package gateway

import (
	"context"
	"time"

	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/services/adapter"
	"dbmonitorapi/services/authz"
	"dbmonitorapi/services/registry"
)

// Gateway serves introspection and execute requests against a saved
// connection.
type Gateway struct {
	reg          *registry.Registry
	authz        authz.Service
	queryTimeout time.Duration
}

// New wires the gateway over its collaborators.
func New(reg *registry.Registry, az authz.Service, queryTimeout time.Duration) *Gateway {
	return &Gateway{reg: reg, authz: az, queryTimeout: queryTimeout}
}

// open authorizes username for the permissions and returns the live adapter.
func (g *Gateway) open(ctx context.Context, username, key string, permissions ...string) (adapter.Adapter, error) {
	owner, err := g.reg.Owner(key)
	if err != nil {
		return nil, err
	}
	for _, perm := range permissions {
		if err := g.authz.Authorize(username, perm, key, owner); err != nil {
			return nil, err
		}
	}
	a, _, err := g.reg.GetOrOpen(ctx, key)
	return a, err
}

// ListSchemas returns the schema names of the connection behind key.
func (g *Gateway) ListSchemas(ctx context.Context, username, key string) ([]string, error) {
	a, err := g.open(ctx, username, key, authz.PermExecuteRead)
	if err != nil {
		return nil, err
	}
	in, ok := a.(adapter.Introspector)
	if !ok {
		return nil, unsupported()
	}
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()
	return in.ListSchemas(ctx)
}

// ListTables returns the tables and views of one schema.
func (g *Gateway) ListTables(ctx context.Context, username, key, schema string) (tables, views []string, err error) {
	a, err := g.open(ctx, username, key, authz.PermExecuteRead)
	if err != nil {
		return nil, nil, err
	}
	in, ok := a.(adapter.Introspector)
	if !ok {
		return nil, nil, unsupported()
	}
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()
	return in.ListTables(ctx, schema)
}

// DescribeTable returns column metadata and a bounded row preview.
func (g *Gateway) DescribeTable(ctx context.Context, username, key, schema, table string) (*adapter.TableInfo, error) {
	a, err := g.open(ctx, username, key, authz.PermExecuteRead)
	if err != nil {
		return nil, err
	}
	in, ok := a.(adapter.Introspector)
	if !ok {
		return nil, unsupported()
	}
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()
	return in.DescribeTable(ctx, schema, table)
}

// Execute runs sqlText after authorizing every permission its statements
// require.
func (g *Gateway) Execute(ctx context.Context, username, key, sqlText string) (*adapter.QueryResult, error) {
	a, err := g.open(ctx, username, key, RequiredPermissions(sqlText)...)
	if err != nil {
		return nil, err
	}
	ex, ok := a.(adapter.Executor)
	if !ok {
		return nil, unsupported()
	}
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()
	return ex.Execute(ctx, sqlText)
}

func unsupported() error {
	return apperrors.New(apperrors.Unsupported, "this database type does not support SQL operations")
}
