package repository

import (
	"dbmonitorapi/config"
	"dbmonitorapi/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository provides data access for local user accounts.
type UserRepository interface {
	GetByUsername(username string) (*models.User, error)
	ListAll() ([]models.User, error)
	Create(user *models.User) error
	UpdateRole(username, role string) error
	UpdatePasswordHash(username, hash string) error
	Delete(username string) (bool, error)
	CountByRole(role string) (int64, error)
	Count() (int64, error)
}

// RoleRepository provides data access for roles.
type RoleRepository interface {
	GetByName(name string) (*models.Role, error)
	ListAll() ([]models.Role, error)
	Create(role *models.Role) error
	CreateIfMissing(role *models.Role) error
	Delete(name string) (bool, error)
}

// GrantRepository provides data access for per-database grants.
type GrantRepository interface {
	Get(username, dbKey string) (*models.Grant, error)
	ListAll() ([]models.Grant, error)
	ListByUser(username string) ([]models.Grant, error)
	Upsert(grant *models.Grant) error
	Delete(username, dbKey string) (bool, error)
	DeleteByDBKey(dbKey string) error
	CountByRole(role string) (int64, error)
}

type userRepository struct{ db *gorm.DB }
type roleRepository struct{ db *gorm.DB }
type grantRepository struct{ db *gorm.DB }

// NewUserRepository creates a repository over the global auth store.
func NewUserRepository() UserRepository { return &userRepository{db: config.AuthDB} }

// NewUserRepositoryWithDB creates a repository over an explicit handle.
func NewUserRepositoryWithDB(db *gorm.DB) UserRepository { return &userRepository{db: db} }

// NewRoleRepository creates a repository over the global auth store.
func NewRoleRepository() RoleRepository { return &roleRepository{db: config.AuthDB} }

// NewRoleRepositoryWithDB creates a repository over an explicit handle.
func NewRoleRepositoryWithDB(db *gorm.DB) RoleRepository { return &roleRepository{db: db} }

// NewGrantRepository creates a repository over the global auth store.
func NewGrantRepository() GrantRepository { return &grantRepository{db: config.AuthDB} }

// NewGrantRepositoryWithDB creates a repository over an explicit handle.
func NewGrantRepositoryWithDB(db *gorm.DB) GrantRepository { return &grantRepository{db: db} }

func (r *userRepository) GetByUsername(username string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) ListAll() ([]models.User, error) {
	var users []models.User
	if err := r.db.Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *userRepository) UpdateRole(username, role string) error {
	return r.db.Model(&models.User{}).Where("username = ?", username).
		Update("role", role).Error
}

func (r *userRepository) UpdatePasswordHash(username, hash string) error {
	return r.db.Model(&models.User{}).Where("username = ?", username).
		Update("password_hash", hash).Error
}

func (r *userRepository) Delete(username string) (bool, error) {
	res := r.db.Where("username = ?", username).Delete(&models.User{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepository) CountByRole(role string) (int64, error) {
	var n int64
	err := r.db.Model(&models.User{}).Where("role = ?", role).Count(&n).Error
	return n, err
}

func (r *userRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.User{}).Count(&n).Error
	return n, err
}

func (r *roleRepository) GetByName(name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) ListAll() ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.Order("name").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) Create(role *models.Role) error {
	return r.db.Create(role).Error
}

func (r *roleRepository) CreateIfMissing(role *models.Role) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(role).Error
}

func (r *roleRepository) Delete(name string) (bool, error) {
	res := r.db.Where("name = ?", name).Delete(&models.Role{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *grantRepository) Get(username, dbKey string) (*models.Grant, error) {
	var g models.Grant
	if err := r.db.Where("username = ? AND db_key = ?", username, dbKey).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *grantRepository) ListAll() ([]models.Grant, error) {
	var grants []models.Grant
	if err := r.db.Order("username, db_key").Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *grantRepository) ListByUser(username string) ([]models.Grant, error) {
	var grants []models.Grant
	if err := r.db.Where("username = ?", username).Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

// Upsert is idempotent on (username, db_key): an existing grant has its role
// replaced instead of duplicating.
func (r *grantRepository) Upsert(grant *models.Grant) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}, {Name: "db_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(grant).Error
}

func (r *grantRepository) Delete(username, dbKey string) (bool, error) {
	res := r.db.Where("username = ? AND db_key = ?", username, dbKey).Delete(&models.Grant{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *grantRepository) DeleteByDBKey(dbKey string) error {
	return r.db.Where("db_key = ?", dbKey).Delete(&models.Grant{}).Error
}

func (r *grantRepository) CountByRole(role string) (int64, error) {
	var n int64
	err := r.db.Model(&models.Grant{}).Where("role = ?", role).Count(&n).Error
	return n, err
}
