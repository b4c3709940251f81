package models

// SavedConnection is the persisted form of a database connection
// configuration. Sensitive fields are vault-encrypted before they reach this
// struct; only display name, engine kind, folder flag and ordering metadata
// are stored in plaintext.
type SavedConnection struct {
	DBKey       string `gorm:"primaryKey;column:db_key" json:"db_key"`
	UserID      string `gorm:"column:user_id;index" json:"user_id"`
	DisplayName string `gorm:"column:display_name;not null" json:"display_name"`
	EngineType  string `gorm:"column:engine_type;not null" json:"engine_type"` // postgres, mysql, mssql, oracle, sqlite, mongodb, opensearch, elasticsearch
	IsFolder    bool   `gorm:"column:is_folder;default:false" json:"is_folder"`

	// Encrypted columns. Empty means the field was not set.
	HostEnc     string `gorm:"column:host_enc" json:"-"`
	PortEnc     string `gorm:"column:port_enc" json:"-"`
	UsernameEnc string `gorm:"column:username_enc" json:"-"`
	PasswordEnc string `gorm:"column:password_enc" json:"-"`
	DatabaseEnc string `gorm:"column:database_enc" json:"-"`
	FilePathEnc string `gorm:"column:file_path_enc" json:"-"`
	ExtraEnc    string `gorm:"column:extra_json_enc" json:"-"`

	GroupName string `gorm:"column:group_name;default:''" json:"group_name"`
	SortOrder int    `gorm:"column:sort_order;default:0" json:"sort_order"`
	CreatedAt string `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides GORM's pluralization.
func (SavedConnection) TableName() string {
	return "saved_connections"
}
