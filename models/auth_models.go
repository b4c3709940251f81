package models

// User is a local account. Password hashes are bcrypt, never reversible.
// The built-in admin account is seeded at startup and cannot be deleted.
type User struct {
	Username     string `gorm:"primaryKey;column:username" json:"username"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	Role         string `gorm:"column:role;not null;default:viewer" json:"role"`
	CreatedAt    string `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName overrides GORM's pluralization.
func (User) TableName() string {
	return "users"
}

// Role names a set of permission atoms. System roles (admin, editor, viewer)
// are seeded at startup and cannot be modified or deleted.
type Role struct {
	Name        string `gorm:"primaryKey;column:name" json:"name"`
	Description string `gorm:"column:description" json:"description"`
	Permissions string `gorm:"column:permissions;not null" json:"-"` // JSON array of permission strings
	IsSystem    bool   `gorm:"column:is_system;default:false" json:"is_system"`
}

// TableName overrides GORM's pluralization.
func (Role) TableName() string {
	return "roles"
}

// Grant gives a user access to a connection they do not own, scoped to the
// named role's permissions. At most one grant per (username, db_key).
type Grant struct {
	Username string `gorm:"primaryKey;column:username" json:"username"`
	DBKey    string `gorm:"primaryKey;column:db_key" json:"db_key"`
	Role     string `gorm:"column:role;not null" json:"role"`
}

// TableName overrides GORM's pluralization.
func (Grant) TableName() string {
	return "user_database_grants"
}
