package adapter

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newSQLiteAdapter(t *testing.T) *sqlAdapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	a, err := newSQLAdapter(EngineSQLite, map[string]string{"filePath": path}, nil)
	if err != nil {
		t.Fatalf("newSQLAdapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteProbe(t *testing.T) {
	a := newSQLiteAdapter(t)
	st := a.Probe(context.Background())
	if !st.Connected {
		t.Fatalf("Expected connected, got error %q", st.Error)
	}
	if st.LastCheck.IsZero() {
		t.Error("Expected LastCheck to be set")
	}
}

func TestProbeUnreachableHostNeverErrors(t *testing.T) {
	a, err := newSQLAdapter(EnginePostgres, map[string]string{
		"host": "127.0.0.1", "port": "1", // nothing listens on port 1
		"username": "u", "password": "p", "database": "d",
	}, nil)
	if err != nil {
		t.Fatalf("newSQLAdapter: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st := a.Probe(ctx)
	if st.Connected {
		t.Fatal("Expected disconnected status")
	}
	if st.Error == "" {
		t.Error("Expected error message to be captured")
	}
}

func TestSQLiteExecuteAndIntrospect(t *testing.T) {
	a := newSQLiteAdapter(t)
	ctx := context.Background()

	if _, err := a.Execute(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	res, err := a.Execute(ctx, "INSERT INTO items (name) VALUES ('one'), ('two')")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.RowsAffected != 2 {
		t.Errorf("Expected 2 rows affected, got %d", res.RowsAffected)
	}
	if res.Message == "" {
		t.Error("Expected a mutation message")
	}

	res, err = a.Execute(ctx, "SELECT id, name FROM items ORDER BY id")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !res.ReturnsRows() {
		t.Fatal("Expected a result set")
	}
	if res.RowCount != 2 {
		t.Errorf("Expected 2 rows, got %d", res.RowCount)
	}
	if res.Rows[0]["name"] != "one" {
		t.Errorf("Expected first row name 'one', got %v", res.Rows[0]["name"])
	}

	schemas, err := a.ListSchemas(ctx)
	if err != nil {
		t.Fatalf("list schemas: %v", err)
	}
	if len(schemas) != 1 || schemas[0] != "main" {
		t.Errorf("Expected [main], got %v", schemas)
	}

	tables, views, err := a.ListTables(ctx, "main")
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(views) != 0 {
		t.Errorf("Expected no views, got %v", views)
	}
	found := false
	for _, tb := range tables {
		if tb == "items" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected items table, got %v", tables)
	}

	info, err := a.DescribeTable(ctx, "main", "items")
	if err != nil {
		t.Fatalf("describe table: %v", err)
	}
	if len(info.Columns) != 2 {
		t.Fatalf("Expected 2 columns, got %d", len(info.Columns))
	}
	if info.Columns[1].Name != "name" || info.Columns[1].Nullable {
		t.Errorf("Expected non-nullable name column, got %+v", info.Columns[1])
	}
	if info.RowCount != 2 {
		t.Errorf("Expected 2 preview rows, got %d", info.RowCount)
	}
}

func TestDescribeTableRejectsBadIdentifier(t *testing.T) {
	a := newSQLiteAdapter(t)
	if _, err := a.DescribeTable(context.Background(), "main", "items; DROP TABLE x"); err == nil {
		t.Fatal("Expected error for malicious identifier")
	}
}

func TestReturnsRowsClassification(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":               true,
		"select * from t":        true,
		"WITH x AS (SELECT 1)":   true,
		"PRAGMA table_info(t)":   true,
		"EXPLAIN SELECT 1":       true,
		"INSERT INTO t VALUES 1": false,
		"UPDATE t SET a=1":       false,
		"CREATE TABLE t (a int)": false,
	}
	for stmt, want := range cases {
		if got := returnsRows(stmt); got != want {
			t.Errorf("returnsRows(%q) = %v, want %v", stmt, got, want)
		}
	}
}
