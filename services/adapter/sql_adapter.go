package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	// Drivers registered with database/sql. The sqlite driver is the same
	// glebarez build the gorm stores use; importing a second sqlite driver
	// would panic at init with a duplicate "sqlite" registration.
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"

	"dbmonitorapi/pkg/apperrors"
)

const previewRowLimit = 100

// sqlAdapter serves every SQL-capable engine kind through database/sql,
// switching on the dialect for introspection queries and identifier quoting.
type sqlAdapter struct {
	kind string
	db   *sql.DB
}

func newSQLAdapter(kind string, fields map[string]string, extra map[string]interface{}) (*sqlAdapter, error) {
	driverName, dsn, err := BuildDSN(kind, fields, extra)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "open connection", err)
	}
	// Handles are opened per saved connection, so keep the pool small.
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)
	return &sqlAdapter{kind: kind, db: db}, nil
}

func (a *sqlAdapter) Probe(ctx context.Context) Status {
	st := Status{LastCheck: time.Now()}
	if err := a.db.PingContext(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true
	return st
}

func (a *sqlAdapter) Close() error {
	return a.db.Close()
}

func (a *sqlAdapter) ListSchemas(ctx context.Context) ([]string, error) {
	if a.kind == EngineSQLite {
		return []string{"main"}, nil
	}
	var query string
	switch a.kind {
	case EnginePostgres, EngineMySQL:
		query = "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name"
	case EngineMSSQL:
		query = "SELECT name FROM sys.schemas ORDER BY name"
	case EngineOracle:
		query = "SELECT username FROM all_users ORDER BY username"
	}
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "list schemas", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.Wrap(apperrors.Connection, "scan schema row", err)
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

func (a *sqlAdapter) ListTables(ctx context.Context, schema string) (tables, views []string, err error) {
	var query string
	var args []interface{}
	switch a.kind {
	case EnginePostgres:
		query = "SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name"
		args = []interface{}{schema}
	case EngineMySQL:
		query = "SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name"
		args = []interface{}{schema}
	case EngineMSSQL:
		query = "SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = @p1 ORDER BY table_name"
		args = []interface{}{schema}
	case EngineOracle:
		query = "SELECT object_name, object_type FROM all_objects WHERE owner = :1 AND object_type IN ('TABLE', 'VIEW') ORDER BY object_name"
		args = []interface{}{strings.ToUpper(schema)}
	case EngineSQLite:
		query = "SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') ORDER BY name"
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Connection, "list tables", err)
	}
	defer rows.Close()

	tables = []string{}
	views = []string{}
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.Connection, "scan table row", err)
		}
		if strings.Contains(strings.ToUpper(kind), "VIEW") {
			views = append(views, name)
		} else {
			tables = append(tables, name)
		}
	}
	return tables, views, rows.Err()
}

func (a *sqlAdapter) DescribeTable(ctx context.Context, schema, table string) (*TableInfo, error) {
	if err := checkIdent(schema); err != nil {
		return nil, err
	}
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	columns, err := a.tableColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	preview, err := a.Execute(ctx, a.previewQuery(schema, table))
	if err != nil {
		return nil, err
	}

	return &TableInfo{
		Columns:     columns,
		PreviewRows: preview.Rows,
		RowCount:    preview.RowCount,
	}, nil
}

func (a *sqlAdapter) tableColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	var query string
	var args []interface{}
	switch a.kind {
	case EnginePostgres:
		query = "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position"
		args = []interface{}{schema, table}
	case EngineMySQL:
		query = "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position"
		args = []interface{}{schema, table}
	case EngineMSSQL:
		query = "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = @p1 AND table_name = @p2 ORDER BY ordinal_position"
		args = []interface{}{schema, table}
	case EngineOracle:
		query = "SELECT column_name, data_type, nullable FROM all_tab_columns WHERE owner = :1 AND table_name = :2 ORDER BY column_id"
		args = []interface{}{strings.ToUpper(schema), strings.ToUpper(table)}
	case EngineSQLite:
		return a.sqliteColumns(ctx, table)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "describe table", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var name, typ, nullable string
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			return nil, apperrors.Wrap(apperrors.Connection, "scan column row", err)
		}
		cols = append(cols, ColumnInfo{
			Name:     name,
			Type:     typ,
			Nullable: nullable == "YES" || nullable == "Y",
		})
	}
	return cols, rows.Err()
}

func (a *sqlAdapter) sqliteColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "describe table", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull int
		var dfltValue interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return nil, apperrors.Wrap(apperrors.Connection, "scan column row", err)
		}
		cols = append(cols, ColumnInfo{Name: name, Type: typ, Nullable: notNull == 0})
	}
	return cols, rows.Err()
}

func (a *sqlAdapter) previewQuery(schema, table string) string {
	target := a.quoteIdent(table)
	if schema != "" && schema != "default" && a.kind != EngineSQLite {
		target = a.quoteIdent(schema) + "." + target
	}
	switch a.kind {
	case EngineMSSQL:
		return fmt.Sprintf("SELECT TOP %d * FROM %s", previewRowLimit, target)
	case EngineOracle:
		return fmt.Sprintf("SELECT * FROM %s FETCH FIRST %d ROWS ONLY", target, previewRowLimit)
	default:
		return fmt.Sprintf("SELECT * FROM %s LIMIT %d", target, previewRowLimit)
	}
}

func (a *sqlAdapter) quoteIdent(ident string) string {
	switch a.kind {
	case EngineMySQL:
		return "`" + ident + "`"
	case EngineMSSQL:
		return "[" + ident + "]"
	default:
		return `"` + ident + `"`
	}
}

// Execute runs an arbitrary statement. Row-returning statements go through
// Query, everything else through Exec so RowsAffected is available.
func (a *sqlAdapter) Execute(ctx context.Context, sqlText string) (*QueryResult, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return nil, apperrors.New(apperrors.Validation, "no SQL provided")
	}

	if returnsRows(sqlText) {
		return a.executeQuery(ctx, sqlText)
	}

	res, err := a.db.ExecContext(ctx, sqlText)
	if err != nil {
		return nil, wrapExecErr(ctx, err)
	}
	affected, _ := res.RowsAffected()
	return &QueryResult{
		RowsAffected: affected,
		Message:      fmt.Sprintf("Query executed successfully. Rows affected: %d", affected),
	}, nil
}

func (a *sqlAdapter) executeQuery(ctx context.Context, sqlText string) (*QueryResult, error) {
	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, wrapExecErr(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "read columns", err)
	}

	out := []map[string]interface{}{}
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperrors.Wrap(apperrors.Connection, "scan result row", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapExecErr(ctx, err)
	}
	return &QueryResult{Columns: cols, Rows: out, RowCount: len(out)}, nil
}

// returnsRows reports whether the first keyword of the statement produces a
// result set.
func returnsRows(sqlText string) bool {
	head := strings.ToUpper(sqlText)
	for _, kw := range []string{"SELECT", "WITH", "EXPLAIN", "SHOW", "DESCRIBE", "DESC ", "PRAGMA", "VALUES"} {
		if strings.HasPrefix(head, kw) {
			return true
		}
	}
	return false
}

// normalizeValue converts driver byte slices to strings so JSON encoding
// stays readable.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func wrapExecErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.Connection, "query timed out", err)
	}
	return apperrors.Wrap(apperrors.Connection, "query failed", err)
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_$.]*$`)

func checkIdent(ident string) error {
	if !identPattern.MatchString(ident) {
		return apperrors.Newf(apperrors.Validation, "invalid identifier: %s", ident)
	}
	return nil
}
