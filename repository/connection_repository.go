package repository

import (
	"dbmonitorapi/config"
	"dbmonitorapi/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionRepository provides data access for saved connection records.
type ConnectionRepository interface {
	GetByKey(key string) (*models.SavedConnection, error)
	ListAll() ([]models.SavedConnection, error)
	ListByUser(userID string) ([]models.SavedConnection, error)
	Save(conn *models.SavedConnection) error
	DeleteByKey(key string) (bool, error)
	UpdateMetadataBatch(updates []MetadataUpdate) error
	ClearGroup(userID, groupName string) error
}

// MetadataUpdate rewrites group and order for one connection key.
type MetadataUpdate struct {
	DBKey     string
	GroupName string
	SortOrder int
}

type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a repository over the global connection store.
func NewConnectionRepository() ConnectionRepository {
	return &connectionRepository{db: config.ConnDB}
}

// NewConnectionRepositoryWithDB creates a repository over an explicit handle.
// Used by tests with an in-memory store.
func NewConnectionRepositoryWithDB(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) GetByKey(key string) (*models.SavedConnection, error) {
	var conn models.SavedConnection
	if err := r.db.Where("db_key = ?", key).First(&conn).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) ListAll() ([]models.SavedConnection, error) {
	var conns []models.SavedConnection
	if err := r.db.Order("sort_order, display_name").Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *connectionRepository) ListByUser(userID string) ([]models.SavedConnection, error) {
	var conns []models.SavedConnection
	if err := r.db.Where("user_id = ?", userID).
		Order("sort_order, display_name").
		Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *connectionRepository) Save(conn *models.SavedConnection) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "db_key"}},
		UpdateAll: true,
	}).Create(conn).Error
}

func (r *connectionRepository) DeleteByKey(key string) (bool, error) {
	res := r.db.Where("db_key = ?", key).Delete(&models.SavedConnection{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateMetadataBatch applies all updates inside one transaction so a reader
// never observes a torn ordering.
func (r *connectionRepository) UpdateMetadataBatch(updates []MetadataUpdate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&models.SavedConnection{}).
				Where("db_key = ?", u.DBKey).
				Updates(map[string]interface{}{
					"group_name": u.GroupName,
					"sort_order": u.SortOrder,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearGroup moves every connection of userID out of groupName into the root
// group, preserving sort order.
func (r *connectionRepository) ClearGroup(userID, groupName string) error {
	return r.db.Model(&models.SavedConnection{}).
		Where("user_id = ? AND group_name = ?", userID, groupName).
		Update("group_name", "").Error
}
