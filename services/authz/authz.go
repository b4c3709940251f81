// Package authz answers "may user U perform action A on database D?" and
// manages the users, roles and grants that feed that decision.
package authz

import (
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"dbmonitorapi/models"
	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/repository"
)

// RoleView is a role with its permission list decoded for API responses.
type RoleView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	IsSystem    bool     `json:"is_system"`
}

// Service is the authorization engine plus user/role/grant management.
type Service interface {
	Authorize(username, permission, dbKey, owner string) error
	HasPermission(username, permission string) bool
	GrantedKeys(username string) ([]string, error)
	VerifyPassword(username, password string) error

	ListUsers() ([]models.User, error)
	CreateUser(username, password, role string) error
	UpdateUserRole(username, role string) error
	ResetPassword(username, newPassword string) error
	ChangePassword(username, oldPassword, newPassword string) error
	DeleteUser(username string) error

	ListRoles() ([]RoleView, error)
	CreateRole(name, description string, permissions []string) error
	DeleteRole(name string) error

	ListGrants() ([]models.Grant, error)
	UpsertGrant(username, dbKey, role string) error
	DeleteGrant(username, dbKey string) error
	DeleteGrantsForKey(dbKey string) error
}

type service struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	grants repository.GrantRepository
}

// NewService creates the engine over the global auth store.
func NewService() Service {
	return &service{
		users:  repository.NewUserRepository(),
		roles:  repository.NewRoleRepository(),
		grants: repository.NewGrantRepository(),
	}
}

// NewServiceWithRepos creates the engine over explicit repositories. Used by
// tests.
func NewServiceWithRepos(users repository.UserRepository, roles repository.RoleRepository, grants repository.GrantRepository) Service {
	return &service{users: users, roles: roles, grants: grants}
}

func denied() error {
	return apperrors.New(apperrors.Authz, "access denied")
}

// Authorize resolves in three steps: the permission must come from the
// user's global role or, when a dbKey is given, from a grant's role for that
// key; non-owners outside the admin role always need the grant. The admin
// role bypasses the grant requirement but still needs the atom itself.
func (s *service) Authorize(username, permission, dbKey, owner string) error {
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return denied()
	}
	global := s.rolePermissions(user.Role)

	if dbKey == "" {
		if global[permission] {
			return nil
		}
		return denied()
	}

	if global[permission] && (owner == username || user.Role == RoleAdmin) {
		return nil
	}

	grant, err := s.grants.Get(username, dbKey)
	if err != nil {
		return denied()
	}
	if s.rolePermissions(grant.Role)[permission] {
		return nil
	}
	return denied()
}

// HasPermission checks a global (non-database-scoped) permission.
func (s *service) HasPermission(username, permission string) bool {
	return s.Authorize(username, permission, "", "") == nil
}

// GrantedKeys returns the db keys username can reach through grants.
func (s *service) GrantedKeys(username string) ([]string, error) {
	grants, err := s.grants.ListByUser(username)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(grants))
	for _, g := range grants {
		keys = append(keys, g.DBKey)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *service) VerifyPassword(username, password string) error {
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return denied()
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return denied()
	}
	return nil
}

func (s *service) rolePermissions(roleName string) map[string]bool {
	role, err := s.roles.GetByName(roleName)
	if err != nil {
		return map[string]bool{}
	}
	return decodePermissions(role)
}

func (s *service) ListUsers() ([]models.User, error) {
	return s.users.ListAll()
}

func (s *service) CreateUser(username, password, role string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return apperrors.New(apperrors.Validation, "username and password are required")
	}
	if _, err := s.roles.GetByName(role); err != nil {
		return apperrors.Newf(apperrors.NotFound, "role not found: %s", role)
	}
	if _, err := s.users.GetByUsername(username); err == nil {
		return apperrors.Newf(apperrors.Validation, "user already exists: %s", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(apperrors.Crypto, "hash password", err)
	}
	return s.users.Create(&models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

// UpdateUserRole reassigns a user's global role. Demoting the last admin is
// refused so the instance can never lock itself out.
func (s *service) UpdateUserRole(username, role string) error {
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return userNotFound(username, err)
	}
	if _, err := s.roles.GetByName(role); err != nil {
		return apperrors.Newf(apperrors.NotFound, "role not found: %s", role)
	}
	if user.Role == RoleAdmin && role != RoleAdmin {
		if err := s.ensureNotLastAdmin(); err != nil {
			return err
		}
	}
	return s.users.UpdateRole(username, role)
}

// ResetPassword sets a new password without knowing the old one. Reserved
// for manage_users callers.
func (s *service) ResetPassword(username, newPassword string) error {
	if newPassword == "" {
		return apperrors.New(apperrors.Validation, "password is required")
	}
	if _, err := s.users.GetByUsername(username); err != nil {
		return userNotFound(username, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(apperrors.Crypto, "hash password", err)
	}
	return s.users.UpdatePasswordHash(username, string(hash))
}

// ChangePassword is the self-service path and requires the current password.
func (s *service) ChangePassword(username, oldPassword, newPassword string) error {
	if err := s.VerifyPassword(username, oldPassword); err != nil {
		return apperrors.New(apperrors.Authz, "current password is incorrect")
	}
	return s.ResetPassword(username, newPassword)
}

func (s *service) DeleteUser(username string) error {
	if username == BuiltinAdminUser {
		return apperrors.New(apperrors.Validation, "the built-in admin account cannot be deleted")
	}
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return userNotFound(username, err)
	}
	if user.Role == RoleAdmin {
		if err := s.ensureNotLastAdmin(); err != nil {
			return err
		}
	}
	deleted, err := s.users.Delete(username)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.Newf(apperrors.NotFound, "user not found: %s", username)
	}
	return nil
}

func (s *service) ensureNotLastAdmin() error {
	n, err := s.users.CountByRole(RoleAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperrors.New(apperrors.Validation, "cannot remove the last admin account")
	}
	return nil
}

func (s *service) ListRoles() ([]RoleView, error) {
	roles, err := s.roles.ListAll()
	if err != nil {
		return nil, err
	}
	out := make([]RoleView, 0, len(roles))
	for i := range roles {
		set := decodePermissions(&roles[i])
		perms := make([]string, 0, len(set))
		for p := range set {
			perms = append(perms, p)
		}
		sort.Strings(perms)
		out = append(out, RoleView{
			Name:        roles[i].Name,
			Description: roles[i].Description,
			Permissions: perms,
			IsSystem:    roles[i].IsSystem,
		})
	}
	return out, nil
}

func (s *service) CreateRole(name, description string, permissions []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.New(apperrors.Validation, "role name is required")
	}
	for _, p := range permissions {
		if !IsValidPermission(p) {
			return apperrors.Newf(apperrors.Validation, "unknown permission: %s", p)
		}
	}
	if _, err := s.roles.GetByName(name); err == nil {
		return apperrors.Newf(apperrors.Validation, "role already exists: %s", name)
	}
	return s.roles.Create(&models.Role{
		Name:        name,
		Description: description,
		Permissions: encodePermissions(permissions),
	})
}

// DeleteRole refuses to remove system roles and roles still referenced by a
// user or grant.
func (s *service) DeleteRole(name string) error {
	role, err := s.roles.GetByName(name)
	if err != nil {
		return apperrors.Newf(apperrors.NotFound, "role not found: %s", name)
	}
	if role.IsSystem {
		return apperrors.Newf(apperrors.Validation, "system role cannot be deleted: %s", name)
	}
	if n, err := s.users.CountByRole(name); err != nil {
		return err
	} else if n > 0 {
		return apperrors.Newf(apperrors.Validation, "role is assigned to %d user(s)", n)
	}
	if n, err := s.grants.CountByRole(name); err != nil {
		return err
	} else if n > 0 {
		return apperrors.Newf(apperrors.Validation, "role is used by %d grant(s)", n)
	}
	_, err = s.roles.Delete(name)
	return err
}

func (s *service) ListGrants() ([]models.Grant, error) {
	return s.grants.ListAll()
}

// UpsertGrant is idempotent on (username, dbKey): an existing grant has its
// role replaced.
func (s *service) UpsertGrant(username, dbKey, role string) error {
	if username == "" || dbKey == "" {
		return apperrors.New(apperrors.Validation, "username and db key are required")
	}
	if _, err := s.users.GetByUsername(username); err != nil {
		return userNotFound(username, err)
	}
	if _, err := s.roles.GetByName(role); err != nil {
		return apperrors.Newf(apperrors.NotFound, "role not found: %s", role)
	}
	return s.grants.Upsert(&models.Grant{Username: username, DBKey: dbKey, Role: role})
}

func (s *service) DeleteGrant(username, dbKey string) error {
	deleted, err := s.grants.Delete(username, dbKey)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.New(apperrors.NotFound, "grant not found")
	}
	return nil
}

// DeleteGrantsForKey cascades grant removal when a connection is deleted.
func (s *service) DeleteGrantsForKey(dbKey string) error {
	return s.grants.DeleteByDBKey(dbKey)
}

func userNotFound(username string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Newf(apperrors.NotFound, "user not found: %s", username)
	}
	return err
}
