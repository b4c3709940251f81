package adapter

import (
	"strings"
	"testing"

	"dbmonitorapi/pkg/apperrors"
)

func TestBuildDSNPostgres(t *testing.T) {
	driver, dsn, err := BuildDSN("postgresql", map[string]string{
		"host": "db.example.com", "port": "5433",
		"username": "u", "password": "p", "database": "app",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver != "pgx" {
		t.Errorf("Expected driver pgx, got %s", driver)
	}
	if dsn != "postgres://u:p@db.example.com:5433/app" {
		t.Errorf("unexpected DSN: %s", dsn)
	}
}

func TestBuildDSNDefaultsPort(t *testing.T) {
	_, dsn, err := BuildDSN("mysql", map[string]string{
		"host": "h", "username": "u", "password": "p", "database": "d",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(dsn, "tcp(h:3306)") {
		t.Errorf("Expected default mysql port in DSN, got %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("Expected parseTime in DSN, got %s", dsn)
	}
}

func TestBuildDSNMSSQLDatabaseParam(t *testing.T) {
	driver, dsn, err := BuildDSN("sqlserver", map[string]string{
		"host": "h", "username": "sa", "password": "p", "database": "master",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver != "sqlserver" {
		t.Errorf("Expected driver sqlserver, got %s", driver)
	}
	if !strings.Contains(dsn, "database=master") {
		t.Errorf("Expected database query param, got %s", dsn)
	}
}

func TestBuildDSNSQLiteRequiresPath(t *testing.T) {
	_, _, err := BuildDSN("sqlite", map[string]string{}, nil)
	if !apperrors.Is(err, apperrors.Validation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	driver, dsn, err := BuildDSN("sqlite", map[string]string{"filePath": "/tmp/x.db"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver != "sqlite" || dsn != "/tmp/x.db" {
		t.Errorf("unexpected driver/dsn: %s %s", driver, dsn)
	}
}

func TestBuildDSNExtraOptions(t *testing.T) {
	_, dsn, err := BuildDSN("postgres", map[string]string{
		"host": "h", "username": "u", "password": "p", "database": "d",
	}, map[string]interface{}{
		"sslmode":         "require",
		"connect_timeout": float64(10),
		"log_errors":      true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"sslmode=require", "connect_timeout=10", "log_errors=true"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("Expected %s in DSN, got %s", want, dsn)
		}
	}
}

func TestBuildDSNUnknownEngine(t *testing.T) {
	_, _, err := BuildDSN("mongodb", nil, nil)
	if !apperrors.Is(err, apperrors.Validation) {
		t.Errorf("Expected validation error for non-SQL engine, got %v", err)
	}
}

func TestNormalizeAliases(t *testing.T) {
	if Normalize("postgresql") != EnginePostgres {
		t.Error("postgresql should normalize to postgres")
	}
	if Normalize("sqlserver") != EngineMSSQL {
		t.Error("sqlserver should normalize to mssql")
	}
	if Normalize("oracle") != EngineOracle {
		t.Error("oracle should stay oracle")
	}
}

func TestCapabilityFlags(t *testing.T) {
	for _, kind := range []string{EnginePostgres, EngineMySQL, EngineMSSQL, EngineOracle, EngineSQLite} {
		if !IsSQL(kind) {
			t.Errorf("%s should be SQL-capable", kind)
		}
	}
	for _, kind := range []string{EngineMongoDB, EngineOpenSearch, EngineElasticsearch} {
		if IsSQL(kind) {
			t.Errorf("%s should not be SQL-capable", kind)
		}
		if !IsSupported(kind) {
			t.Errorf("%s should be supported", kind)
		}
	}
	if IsSupported("folder") {
		t.Error("folder is not an engine")
	}
}
