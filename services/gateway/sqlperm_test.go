package gateway

import (
	"reflect"
	"testing"

	"dbmonitorapi/services/authz"
)

func TestRequiredPermissionsSingleStatements(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM t":      authz.PermExecuteRead,
		"select 1":             authz.PermExecuteRead,
		"EXPLAIN SELECT 1":     authz.PermExecuteRead,
		"SHOW TABLES":          authz.PermExecuteRead,
		"DESCRIBE t":           authz.PermExecuteRead,
		"PRAGMA table_info(t)": authz.PermExecuteRead,

		"INSERT INTO t VALUES (1)": authz.PermExecuteWrite,
		"UPDATE t SET a = 1":       authz.PermExecuteWrite,
		"DELETE FROM t":            authz.PermExecuteWrite,
		"REPLACE INTO t VALUES 1":  authz.PermExecuteWrite,
		"MERGE INTO t USING s":     authz.PermExecuteWrite,

		"CREATE TABLE t (a int)": authz.PermExecuteDDL,
		"ALTER TABLE t ADD b":    authz.PermExecuteDDL,
		"DROP TABLE t":           authz.PermExecuteDDL,
		"TRUNCATE TABLE t":       authz.PermExecuteDDL,
		"GRANT ALL ON t TO u":    authz.PermExecuteDDL,
		"REVOKE ALL ON t FROM u": authz.PermExecuteDDL,

		// Unknown statement kinds default to write.
		"VACUUM":         authz.PermExecuteWrite,
		"CALL my_proc()": authz.PermExecuteWrite,
	}
	for stmt, want := range cases {
		got := RequiredPermissions(stmt)
		if len(got) != 1 || got[0] != want {
			t.Errorf("RequiredPermissions(%q) = %v, want [%s]", stmt, got, want)
		}
	}
}

// A CTE prefix says nothing about the wrapped statement, so WITH must demand
// the write atom even when the body is a plain SELECT.
func TestRequiredPermissionsCTE(t *testing.T) {
	cases := []string{
		"WITH t AS (SELECT 1) INSERT INTO x SELECT * FROM t",
		"WITH doomed AS (DELETE FROM t RETURNING *) SELECT * FROM doomed",
		"WITH x AS (SELECT 1) SELECT * FROM x",
	}
	for _, stmt := range cases {
		got := RequiredPermissions(stmt)
		if len(got) != 1 || got[0] != authz.PermExecuteWrite {
			t.Errorf("RequiredPermissions(%q) = %v, want [%s]", stmt, got, authz.PermExecuteWrite)
		}
	}
}

func TestRequiredPermissionsMultiStatement(t *testing.T) {
	got := RequiredPermissions("SELECT 1; DROP TABLE t; INSERT INTO x VALUES (1)")
	want := []string{authz.PermExecuteRead, authz.PermExecuteDDL, authz.PermExecuteWrite}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRequiredPermissionsIgnoresComments(t *testing.T) {
	got := RequiredPermissions("-- DROP TABLE t\nSELECT 1")
	if len(got) != 1 || got[0] != authz.PermExecuteRead {
		t.Errorf("line comment changed classification: %v", got)
	}

	got = RequiredPermissions("/* INSERT INTO t */ SELECT 1")
	if len(got) != 1 || got[0] != authz.PermExecuteRead {
		t.Errorf("block comment changed classification: %v", got)
	}
}

func TestRequiredPermissionsEmptyInput(t *testing.T) {
	got := RequiredPermissions("   ;  ; ")
	if len(got) != 1 || got[0] != authz.PermExecuteRead {
		t.Errorf("empty batch should default to read, got %v", got)
	}
}
