// Package adapter implements per-engine database access: liveness probing
// for every engine kind, plus schema introspection and statement execution
// for the SQL-capable kinds.
package adapter

import (
	"context"
	"time"

	"dbmonitorapi/pkg/apperrors"
)

// Supported engine kinds.
const (
	EnginePostgres      = "postgres"
	EngineMySQL         = "mysql"
	EngineMSSQL         = "mssql"
	EngineOracle        = "oracle"
	EngineSQLite        = "sqlite"
	EngineMongoDB       = "mongodb"
	EngineOpenSearch    = "opensearch"
	EngineElasticsearch = "elasticsearch"
)

// Normalize maps engine-kind aliases onto the canonical names.
func Normalize(kind string) string {
	switch kind {
	case "postgresql":
		return EnginePostgres
	case "sqlserver":
		return EngineMSSQL
	default:
		return kind
	}
}

// IsSupported reports whether kind names a known engine.
func IsSupported(kind string) bool {
	switch Normalize(kind) {
	case EnginePostgres, EngineMySQL, EngineMSSQL, EngineOracle, EngineSQLite,
		EngineMongoDB, EngineOpenSearch, EngineElasticsearch:
		return true
	}
	return false
}

// IsSQL reports whether kind supports introspection and execution.
func IsSQL(kind string) bool {
	switch Normalize(kind) {
	case EnginePostgres, EngineMySQL, EngineMSSQL, EngineOracle, EngineSQLite:
		return true
	}
	return false
}

// DefaultPort returns the conventional port for kind, or 0 when the engine
// has no network port (sqlite).
func DefaultPort(kind string) int {
	switch Normalize(kind) {
	case EnginePostgres:
		return 5432
	case EngineMySQL:
		return 3306
	case EngineMSSQL:
		return 1433
	case EngineOracle:
		return 1521
	case EngineMongoDB:
		return 27017
	case EngineOpenSearch, EngineElasticsearch:
		return 9200
	}
	return 0
}

// Status is the result of a liveness probe. Probe never fails with an error;
// driver failures degrade into Connected=false with the message captured.
type Status struct {
	Connected bool      `json:"connected"`
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// ColumnInfo describes one table column.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableInfo is the result of DescribeTable: column metadata plus a bounded
// row preview.
type TableInfo struct {
	Columns     []ColumnInfo             `json:"columns"`
	PreviewRows []map[string]interface{} `json:"data"`
	RowCount    int                      `json:"row_count"`
}

// QueryResult is either a result set (Columns/Rows populated) or a mutation
// summary (Message/RowsAffected populated).
type QueryResult struct {
	Columns      []string                 `json:"columns,omitempty"`
	Rows         []map[string]interface{} `json:"data,omitempty"`
	RowCount     int                      `json:"row_count"`
	RowsAffected int64                    `json:"rows_affected,omitempty"`
	Message      string                   `json:"message,omitempty"`
}

// ReturnsRows reports whether the result carries a result set.
func (r *QueryResult) ReturnsRows() bool {
	return r.Columns != nil
}

// Adapter is the capability every engine kind provides.
type Adapter interface {
	// Probe checks liveness within ctx's deadline. It never panics or
	// returns an error; failures are captured into the Status.
	Probe(ctx context.Context) Status
	// Close releases the underlying driver resources.
	Close() error
}

// Introspector is implemented by SQL-capable adapters only.
type Introspector interface {
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) (tables, views []string, err error)
	DescribeTable(ctx context.Context, schema, table string) (*TableInfo, error)
}

// Executor is implemented by SQL-capable adapters only. Statement kind is
// not restricted here; permission checks happen before the call.
type Executor interface {
	Execute(ctx context.Context, sqlText string) (*QueryResult, error)
}

// New constructs an adapter for the given engine kind. Non-SQL kinds
// (mongodb, opensearch, elasticsearch) yield probe-only adapters.
// Construction itself does not dial; the first Probe does.
func New(kind string, fields map[string]string, extra map[string]interface{}) (Adapter, error) {
	kind = Normalize(kind)
	switch kind {
	case EnginePostgres, EngineMySQL, EngineMSSQL, EngineOracle, EngineSQLite:
		return newSQLAdapter(kind, fields, extra)
	case EngineMongoDB:
		return newMongoAdapter(fields, extra)
	case EngineOpenSearch:
		return newOpenSearchAdapter(fields, extra)
	case EngineElasticsearch:
		return newElasticsearchAdapter(fields, extra)
	default:
		return nil, apperrors.Newf(apperrors.Validation, "unsupported database type: %s", kind)
	}
}
