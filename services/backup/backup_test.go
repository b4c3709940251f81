package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dbmonitorapi/models"
	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/repository"
	"dbmonitorapi/services/registry"
	"dbmonitorapi/services/vault"
)

func newTestExporter(t *testing.T) (*Exporter, *registry.Registry) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "conn.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SavedConnection{}))

	v, err := vault.NewWithKey(make([]byte, 32))
	require.NoError(t, err)

	reg := registry.New(repository.NewConnectionRepositoryWithDB(db), v, time.Second)
	t.Cleanup(reg.Close)
	return New(reg), reg
}

func pgSpec(name, group string) *registry.Spec {
	return &registry.Spec{
		Name:   name,
		Engine: "postgres",
		Fields: map[string]string{
			"host": "db1", "username": "u", "password": "pw-" + name, "database": "d",
		},
		Group: group,
	}
}

func TestExportImportRoundtrip(t *testing.T) {
	exp, reg := newTestExporter(t)

	_, err := reg.Create("alice", pgSpec("one", "Prod"))
	require.NoError(t, err)
	_, err = reg.Create("alice", pgSpec("two", ""))
	require.NoError(t, err)

	data, filename, err := exp.Export("alice", "hunter2")
	require.NoError(t, err)
	require.Contains(t, filename, "db_monitor_backup_")
	require.Contains(t, filename, ".enc")

	// Restore into a different user's account on a fresh registry.
	exp2, reg2 := newTestExporter(t)
	count, err := exp2.Import("bob", "hunter2", data)
	require.NoError(t, err)
	// The Prod folder marker was auto-created on export side, so 3 records.
	require.Equal(t, 3, count)

	entries := reg2.List("bob", nil)
	require.Len(t, entries, 3)
	byName := map[string]registry.Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	require.Equal(t, "pw-one", byName["one"].Fields["password"])
	require.Equal(t, "Prod", byName["one"].Group)
	require.True(t, byName["Prod"].IsFolder)
}

func TestImportWrongPassword(t *testing.T) {
	exp, reg := newTestExporter(t)
	_, err := reg.Create("alice", pgSpec("one", ""))
	require.NoError(t, err)

	data, _, err := exp.Export("alice", "hunter2")
	require.NoError(t, err)

	_, err = exp.Import("alice", "wrong", data)
	require.True(t, apperrors.Is(err, apperrors.Crypto))
}

func TestImportGarbageArchive(t *testing.T) {
	exp, _ := newTestExporter(t)
	_, err := exp.Import("alice", "pw", "definitely not base64 !!!")
	require.True(t, apperrors.Is(err, apperrors.Validation))
}

func TestImportNeverOverwritesExisting(t *testing.T) {
	exp, reg := newTestExporter(t)

	key, err := reg.Create("alice", pgSpec("one", ""))
	require.NoError(t, err)

	data, _, err := exp.Export("alice", "hunter2")
	require.NoError(t, err)

	count, err := exp.Import("alice", "hunter2", data)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	entries := reg.List("alice", nil)
	require.Len(t, entries, 2, "import inserts as new, never overwrites")
	for _, e := range entries {
		if e.DBKey != key {
			require.Equal(t, "pw-one", e.Fields["password"])
		}
	}
}

func TestExportScopedToOwner(t *testing.T) {
	exp, reg := newTestExporter(t)
	_, err := reg.Create("alice", pgSpec("mine", ""))
	require.NoError(t, err)
	_, err = reg.Create("bob", pgSpec("theirs", ""))
	require.NoError(t, err)

	data, _, err := exp.Export("alice", "pw")
	require.NoError(t, err)

	exp2, reg2 := newTestExporter(t)
	count, err := exp2.Import("carol", "pw", data)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, "mine", reg2.List("carol", nil)[0].Name)
}
