package gateway

import (
	"context"
	"encoding/json"
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
	"dbmonitorapi/services/authz"
	"dbmonitorapi/services/registry"
	"dbmonitorapi/services/vault"
)

func newTestGateway(t *testing.T) (*Gateway, *registry.Registry, authz.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "stores.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.SavedConnection{}, &models.User{}, &models.Role{}, &models.Grant{},
	))

	roles := repository.NewRoleRepositoryWithDB(db)
	seed := map[string][]string{
		authz.RoleEditor: {authz.PermAPIAccess, authz.PermManageConnections,
			authz.PermExecuteRead, authz.PermExecuteWrite, authz.PermExecuteDDL},
		authz.RoleViewer: {authz.PermAPIAccess, authz.PermExecuteRead},
	}
	for name, perms := range seed {
		raw, _ := json.Marshal(perms)
		require.NoError(t, roles.CreateIfMissing(&models.Role{
			Name: name, Permissions: string(raw), IsSystem: true,
		}))
	}
	az := authz.NewServiceWithRepos(
		repository.NewUserRepositoryWithDB(db),
		roles,
		repository.NewGrantRepositoryWithDB(db),
	)
	require.NoError(t, az.CreateUser("erin", "pw1234", authz.RoleEditor))
	require.NoError(t, az.CreateUser("vera", "pw1234", authz.RoleViewer))

	v, err := vault.NewWithKey(make([]byte, 32))
	require.NoError(t, err)
	reg := registry.New(repository.NewConnectionRepositoryWithDB(db), v, 2*time.Second)
	t.Cleanup(reg.Close)

	return New(reg, az, 5*time.Second), reg, az
}

func createSQLite(t *testing.T, reg *registry.Registry, owner string) string {
	t.Helper()
	key, err := reg.Create(owner, &registry.Spec{
		Name:   "local",
		Engine: "sqlite",
		Fields: map[string]string{"filePath": filepath.Join(t.TempDir(), "data.db")},
	})
	require.NoError(t, err)
	return key
}

func TestExecuteAsOwner(t *testing.T) {
	gw, reg, _ := newTestGateway(t)
	key := createSQLite(t, reg, "erin")
	ctx := context.Background()

	_, err := gw.Execute(ctx, "erin", key, "CREATE TABLE t (a INTEGER)")
	require.NoError(t, err)
	res, err := gw.Execute(ctx, "erin", key, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.Equal(t, int64(1), res.RowsAffected)

	res, err = gw.Execute(ctx, "erin", key, "SELECT a FROM t")
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount)
}

func TestExecuteDeniedWithoutGrant(t *testing.T) {
	gw, reg, az := newTestGateway(t)
	key := createSQLite(t, reg, "erin")
	ctx := context.Background()

	_, err := gw.Execute(ctx, "erin", key, "CREATE TABLE t (a INTEGER)")
	require.NoError(t, err)

	_, err = gw.Execute(ctx, "vera", key, "SELECT * FROM t")
	require.True(t, apperrors.Is(err, apperrors.Authz))

	// Granting the viewer role flips the identical call.
	require.NoError(t, az.UpsertGrant("vera", key, authz.RoleViewer))
	_, err = gw.Execute(ctx, "vera", key, "SELECT * FROM t")
	require.NoError(t, err)

	// But the granted role has no write atom.
	_, err = gw.Execute(ctx, "vera", key, "INSERT INTO t VALUES (1)")
	require.True(t, apperrors.Is(err, apperrors.Authz))
}

func TestViewerCannotRunDDLOnOwnConnection(t *testing.T) {
	gw, reg, _ := newTestGateway(t)
	key := createSQLite(t, reg, "vera")

	_, err := gw.Execute(context.Background(), "vera", key, "CREATE TABLE t (a INTEGER)")
	require.True(t, apperrors.Is(err, apperrors.Authz))

	_, err = gw.Execute(context.Background(), "vera", key, "SELECT 1")
	require.NoError(t, err)
}

func TestIntrospection(t *testing.T) {
	gw, reg, _ := newTestGateway(t)
	key := createSQLite(t, reg, "erin")
	ctx := context.Background()

	_, err := gw.Execute(ctx, "erin", key, "CREATE TABLE t (a INTEGER)")
	require.NoError(t, err)

	schemas, err := gw.ListSchemas(ctx, "erin", key)
	require.NoError(t, err)
	require.Equal(t, []string{"main"}, schemas)

	tables, _, err := gw.ListTables(ctx, "erin", key, "main")
	require.NoError(t, err)
	require.Contains(t, tables, "t")

	info, err := gw.DescribeTable(ctx, "erin", key, "main", "t")
	require.NoError(t, err)
	require.Len(t, info.Columns, 1)
}

func TestUnknownKeyIsNotFound(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	_, err := gw.ListSchemas(context.Background(), "erin", "missing")
	require.True(t, apperrors.Is(err, apperrors.NotFound))
}
