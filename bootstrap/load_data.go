// Package bootstrap seeds the auth store with the system roles and the
// built-in admin account on first run.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dbmonitorapi/models"
	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/repository"
	"dbmonitorapi/services/authz"
)

const defaultAdminPassword = "admin"

// systemRoles are created idempotently at every startup.
var systemRoles = []struct {
	name        string
	description string
	permissions []string
}{
	{authz.RoleAdmin, "Full administrative access", []string{
		authz.PermAPIAccess, authz.PermManageUsers, authz.PermManageRoles,
		authz.PermManageConnections, authz.PermExecuteRead,
		authz.PermExecuteWrite, authz.PermExecuteDDL,
	}},
	{authz.RoleEditor, "Manage connections and run any SQL", []string{
		authz.PermAPIAccess, authz.PermManageConnections,
		authz.PermExecuteRead, authz.PermExecuteWrite, authz.PermExecuteDDL,
	}},
	{authz.RoleViewer, "Read-only SQL access", []string{
		authz.PermAPIAccess, authz.PermExecuteRead,
	}},
}

// LoadData seeds the system roles and the built-in admin user.
func LoadData() error {
	logger.Infof("Starting bootstrap data loading...")

	roleRepo := repository.NewRoleRepository()
	userRepo := repository.NewUserRepository()

	if err := seedRoles(roleRepo); err != nil {
		return err
	}
	if err := seedAdmin(userRepo); err != nil {
		return err
	}

	logger.Infof("Bootstrap data loading completed successfully")
	return nil
}

func seedRoles(repo repository.RoleRepository) error {
	for _, r := range systemRoles {
		perms, err := json.Marshal(r.permissions)
		if err != nil {
			return err
		}
		role := &models.Role{
			Name:        r.name,
			Description: r.description,
			Permissions: string(perms),
			IsSystem:    true,
		}
		if err := repo.CreateIfMissing(role); err != nil {
			logger.Errorf("Failed to seed role %s: %v", r.name, err)
			return fmt.Errorf("seed role %s: %w", r.name, err)
		}
	}
	logger.Infof("Seeded %d system roles", len(systemRoles))
	return nil
}

// seedAdmin creates the built-in admin account on first run with a default
// password that must be changed after login.
func seedAdmin(repo repository.UserRepository) error {
	n, err := repo.Count()
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := repo.Create(&models.User{
		Username:     authz.BuiltinAdminUser,
		PasswordHash: string(hash),
		Role:         authz.RoleAdmin,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	logger.Warnf("Created built-in admin account with the default password; change it immediately")
	return nil
}
