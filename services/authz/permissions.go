package authz

import (
	"encoding/json"

	"dbmonitorapi/models"
)

// Permission atoms checked by Authorize.
const (
	PermAPIAccess         = "api_access"
	PermManageUsers       = "manage_users"
	PermManageRoles       = "manage_roles"
	PermManageConnections = "manage_connections"
	PermExecuteRead       = "execute_sql_read"
	PermExecuteWrite      = "execute_sql_write"
	PermExecuteDDL        = "execute_sql_ddl"
)

// System role names. These are seeded at startup and cannot be deleted.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// BuiltinAdminUser is the account created on first run. It can never be
// deleted or demoted below admin when it is the last one.
const BuiltinAdminUser = "admin"

var allPermissions = []string{
	PermAPIAccess, PermManageUsers, PermManageRoles, PermManageConnections,
	PermExecuteRead, PermExecuteWrite, PermExecuteDDL,
}

// systemRolePermissions defines the seeded permission sets.
var systemRolePermissions = map[string][]string{
	RoleAdmin: allPermissions,
	RoleEditor: {
		PermAPIAccess, PermManageConnections,
		PermExecuteRead, PermExecuteWrite, PermExecuteDDL,
	},
	RoleViewer: {PermAPIAccess, PermExecuteRead},
}

// IsValidPermission reports whether name is a known atom.
func IsValidPermission(name string) bool {
	for _, p := range allPermissions {
		if p == name {
			return true
		}
	}
	return false
}

// encodePermissions serialises a permission list into the role's storage
// column.
func encodePermissions(perms []string) string {
	raw, _ := json.Marshal(perms)
	return string(raw)
}

// decodePermissions parses the role's permission column into a lookup set.
// A damaged column decodes to the empty set rather than failing the request.
func decodePermissions(role *models.Role) map[string]bool {
	set := map[string]bool{}
	if role == nil || role.Permissions == "" {
		return set
	}
	var perms []string
	if err := json.Unmarshal([]byte(role.Permissions), &perms); err != nil {
		return set
	}
	for _, p := range perms {
		set[p] = true
	}
	return set
}
