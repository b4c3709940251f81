package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dbmonitorapi/models"
	"dbmonitorapi/pkg/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnDB is the global GORM handle for the encrypted connection store.
var ConnDB *gorm.DB

// AuthDB is the global GORM handle for the user/role/grant store.
var AuthDB *gorm.DB

// ConnectStores opens both sqlite stores under the data directory and runs
// schema migration. Unreadable stores are fatal at startup.
func ConnectStores() error {
	if err := os.MkdirAll(Cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("cannot create data directory %s: %w", Cfg.DataDir, err)
	}

	connPath := filepath.Join(Cfg.DataDir, "connections.db")
	authPath := filepath.Join(Cfg.DataDir, "auth.db")

	var err error
	ConnDB, err = openStore(connPath)
	if err != nil {
		return fmt.Errorf("open connection store: %w", err)
	}
	if err := ConnDB.AutoMigrate(&models.SavedConnection{}); err != nil {
		return fmt.Errorf("migrate connection store: %w", err)
	}

	AuthDB, err = openStore(authPath)
	if err != nil {
		return fmt.Errorf("open auth store: %w", err)
	}
	if err := AuthDB.AutoMigrate(&models.User{}, &models.Role{}, &models.Grant{}); err != nil {
		return fmt.Errorf("migrate auth store: %w", err)
	}

	logger.Infof("Stores opened: %s, %s", connPath, authPath)
	return nil
}

func openStore(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}
