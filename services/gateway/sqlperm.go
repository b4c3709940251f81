package gateway

import (
	"regexp"
	"strings"

	"dbmonitorapi/services/authz"
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

var statementPermission = map[string]string{
	"SELECT":   authz.PermExecuteRead,
	"EXPLAIN":  authz.PermExecuteRead,
	"SHOW":     authz.PermExecuteRead,
	"DESCRIBE": authz.PermExecuteRead,
	"DESC":     authz.PermExecuteRead,
	"PRAGMA":   authz.PermExecuteRead,

	"INSERT":  authz.PermExecuteWrite,
	"UPDATE":  authz.PermExecuteWrite,
	"DELETE":  authz.PermExecuteWrite,
	"REPLACE": authz.PermExecuteWrite,
	"UPSERT":  authz.PermExecuteWrite,
	"MERGE":   authz.PermExecuteWrite,

	"CREATE":   authz.PermExecuteDDL,
	"ALTER":    authz.PermExecuteDDL,
	"DROP":     authz.PermExecuteDDL,
	"TRUNCATE": authz.PermExecuteDDL,
	"GRANT":    authz.PermExecuteDDL,
	"REVOKE":   authz.PermExecuteDDL,
}

// RequiredPermissions classifies every statement in sqlText by its leading
// keyword and returns the set of permission atoms needed to run the whole
// batch. Unknown statement kinds are treated as writes; that includes WITH,
// since a CTE can wrap INSERT/UPDATE/DELETE.
func RequiredPermissions(sqlText string) []string {
	stripped := blockCommentRe.ReplaceAllString(sqlText, " ")
	stripped = lineCommentRe.ReplaceAllString(stripped, " ")

	seen := map[string]bool{}
	var perms []string
	for _, stmt := range strings.Split(stripped, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		keyword := strings.ToUpper(strings.Fields(stmt)[0])
		perm, ok := statementPermission[keyword]
		if !ok {
			perm = authz.PermExecuteWrite
		}
		if !seen[perm] {
			seen[perm] = true
			perms = append(perms, perm)
		}
	}
	if perms == nil {
		perms = []string{authz.PermExecuteRead}
	}
	return perms
}
