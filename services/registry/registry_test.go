package registry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dbmonitorapi/models"
	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/repository"
	"dbmonitorapi/services/adapter"
	"dbmonitorapi/services/vault"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "conn.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SavedConnection{}))

	v, err := vault.NewWithKey(make([]byte, 32))
	require.NoError(t, err)

	reg := New(repository.NewConnectionRepositoryWithDB(db), v, 2*time.Second)
	t.Cleanup(reg.Close)
	return reg
}

func sqliteSpec(t *testing.T, name, group string) *Spec {
	t.Helper()
	return &Spec{
		Name:   name,
		Engine: "sqlite",
		Fields: map[string]string{"filePath": filepath.Join(t.TempDir(), name+".db")},
		Group:  group,
	}
}

func TestCreateListDelete(t *testing.T) {
	reg := newTestRegistry(t)

	key, err := reg.Create("alice", sqliteSpec(t, "local", ""))
	require.NoError(t, err)
	require.Len(t, key, keyLength)

	entries := reg.List("alice", nil)
	require.Len(t, entries, 1)
	require.Equal(t, "local", entries[0].Name)
	require.Equal(t, "alice", entries[0].UserID)

	// Other users see nothing without a grant.
	require.Empty(t, reg.List("bob", nil))
	// A grant key makes the connection visible.
	require.Len(t, reg.List("bob", []string{key}), 1)

	require.NoError(t, reg.Delete("alice", key))
	require.Empty(t, reg.List("alice", nil))

	err = reg.Delete("alice", key)
	require.True(t, apperrors.Is(err, apperrors.NotFound))
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create("alice", &Spec{
		Name:   "pg",
		Engine: "postgresql",
		Fields: map[string]string{"host": "h", "username": "u", "database": "d"},
	})
	require.True(t, apperrors.Is(err, apperrors.Validation), "missing password must be rejected")

	_, err = reg.Create("alice", &Spec{Name: "x", Engine: "dbase"})
	require.True(t, apperrors.Is(err, apperrors.Validation))
}

func TestCreateRejectsNonObjectExtra(t *testing.T) {
	reg := newTestRegistry(t)

	spec := sqliteSpec(t, "x", "")
	spec.Extra = json.RawMessage(`["not", "an", "object"]`)
	_, err := reg.Create("alice", spec)
	require.True(t, apperrors.Is(err, apperrors.Validation))
}

func TestPersistedSecretsAreEncrypted(t *testing.T) {
	reg := newTestRegistry(t)

	spec := &Spec{
		Name:   "pg",
		Engine: "postgres",
		Fields: map[string]string{
			"host": "h", "username": "u", "password": "topsecret", "database": "d",
		},
	}
	key, err := reg.Create("alice", spec)
	require.NoError(t, err)

	rec, err := reg.repo.GetByKey(key)
	require.NoError(t, err)
	require.NotEmpty(t, rec.PasswordEnc)
	require.NotContains(t, rec.PasswordEnc, "topsecret")

	cfg, err := reg.Get(key)
	require.NoError(t, err)
	require.Equal(t, "topsecret", cfg.Fields["password"])
}

func TestUpdateBlankPasswordKeepsStored(t *testing.T) {
	reg := newTestRegistry(t)

	key, err := reg.Create("alice", &Spec{
		Name:   "pg",
		Engine: "postgres",
		Fields: map[string]string{"host": "h", "username": "u", "password": "orig", "database": "d"},
	})
	require.NoError(t, err)

	require.NoError(t, reg.Update("alice", key, &Spec{
		Name:   "pg renamed",
		Engine: "postgres",
		Fields: map[string]string{"host": "h2", "username": "u", "password": "", "database": "d"},
	}))

	cfg, err := reg.Get(key)
	require.NoError(t, err)
	require.Equal(t, "pg renamed", cfg.Name)
	require.Equal(t, "h2", cfg.Fields["host"])
	require.Equal(t, "orig", cfg.Fields["password"])
}

func TestUpdateRequiresOwnership(t *testing.T) {
	reg := newTestRegistry(t)

	key, err := reg.Create("alice", sqliteSpec(t, "x", ""))
	require.NoError(t, err)

	err = reg.Update("bob", key, sqliteSpec(t, "x", ""))
	require.True(t, apperrors.Is(err, apperrors.Authz))
	err = reg.Delete("bob", key)
	require.True(t, apperrors.Is(err, apperrors.Authz))
}

func TestOrderAssignmentWithinGroup(t *testing.T) {
	reg := newTestRegistry(t)

	k1, err := reg.Create("alice", sqliteSpec(t, "a", ""))
	require.NoError(t, err)
	k2, err := reg.Create("alice", sqliteSpec(t, "b", ""))
	require.NoError(t, err)

	c1, _ := reg.Get(k1)
	c2, _ := reg.Get(k2)
	require.Equal(t, 0, c1.Order)
	require.Equal(t, 1, c2.Order)
}

func TestReorderBatch(t *testing.T) {
	reg := newTestRegistry(t)

	k1, _ := reg.Create("alice", sqliteSpec(t, "a", ""))
	k2, _ := reg.Create("alice", sqliteSpec(t, "b", ""))

	require.NoError(t, reg.Reorder("alice", []ReorderUpdate{
		{DBKey: k1, Group: "Prod", Order: 1},
		{DBKey: k2, Group: "Prod", Order: 0},
	}))

	c1, _ := reg.Get(k1)
	c2, _ := reg.Get(k2)
	require.Equal(t, "Prod", c1.Group)
	require.Equal(t, 1, c1.Order)
	require.Equal(t, 0, c2.Order)
}

func TestReorderRejectsForeignKeysEntirely(t *testing.T) {
	reg := newTestRegistry(t)

	k1, _ := reg.Create("alice", sqliteSpec(t, "a", ""))
	kb, _ := reg.Create("bob", sqliteSpec(t, "b", ""))

	err := reg.Reorder("alice", []ReorderUpdate{
		{DBKey: k1, Group: "G", Order: 0},
		{DBKey: kb, Group: "G", Order: 1},
	})
	require.True(t, apperrors.Is(err, apperrors.Authz))

	// Nothing from the batch was applied.
	c1, _ := reg.Get(k1)
	require.Equal(t, "", c1.Group)
}

func TestFolderAutoCreatedForUnknownGroup(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create("alice", sqliteSpec(t, "a", "Prod"))
	require.NoError(t, err)

	entries := reg.List("alice", nil)
	require.Len(t, entries, 2)
	var folders int
	for _, e := range entries {
		if e.IsFolder {
			folders++
			require.Equal(t, "Prod", e.Name)
		}
	}
	require.Equal(t, 1, folders)
}

func TestDeleteFolderMovesMembersToRoot(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create("alice", &Spec{Name: "Prod", Engine: EngineFolder})
	require.NoError(t, err)
	k1, err := reg.Create("alice", sqliteSpec(t, "a", "Prod"))
	require.NoError(t, err)
	k2, err := reg.Create("alice", sqliteSpec(t, "b", "Prod"))
	require.NoError(t, err)

	require.NoError(t, reg.DeleteFolder("alice", "Prod"))

	entries := reg.List("alice", nil)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.False(t, e.IsFolder)
		require.Equal(t, "", e.Group)
	}

	// Relative order is preserved.
	c1, _ := reg.Get(k1)
	c2, _ := reg.Get(k2)
	require.Less(t, c1.Order, c2.Order)
}

func TestGetOrOpenProbesAndCaches(t *testing.T) {
	reg := newTestRegistry(t)

	key, err := reg.Create("alice", sqliteSpec(t, "local", ""))
	require.NoError(t, err)

	a, st, err := reg.GetOrOpen(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.True(t, st.Connected)

	// Second call returns the cached handle.
	a2, _, err := reg.GetOrOpen(context.Background(), key)
	require.NoError(t, err)
	require.Same(t, a, a2)

	entries := reg.List("alice", nil)
	require.NotNil(t, entries[0].Status)
	require.True(t, entries[0].Status.Connected)
}

// flakyAdapter stands in for a live handle whose backend can go away
// between health sweeps.
type flakyAdapter struct {
	mu        sync.Mutex
	connected bool
	probes    int
	closed    bool
}

func (a *flakyAdapter) Probe(ctx context.Context) adapter.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes++
	st := adapter.Status{Connected: a.connected, LastCheck: time.Now()}
	if !a.connected {
		st.Error = "connection refused"
	}
	return st
}

func (a *flakyAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *flakyAdapter) setConnected(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = ok
}

func (a *flakyAdapter) snapshot() (probes int, closed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.probes, a.closed
}

func TestProbeDetectsLostConnection(t *testing.T) {
	reg := newTestRegistry(t)
	key, err := reg.Create("alice", sqliteSpec(t, "local", ""))
	require.NoError(t, err)

	fake := &flakyAdapter{connected: true}
	reg.mu.Lock()
	reg.handles[key] = &liveHandle{adapter: fake, status: adapter.Status{Connected: true}}
	reg.mu.Unlock()

	// A cached healthy handle is still pinged on every sweep, not trusted.
	st := reg.Probe(context.Background(), key)
	require.True(t, st.Connected)
	probes, _ := fake.snapshot()
	require.Equal(t, 1, probes)

	// The backend dies; the next sweep must report offline.
	fake.setConnected(false)
	st = reg.Probe(context.Background(), key)
	require.False(t, st.Connected)
	require.NotEmpty(t, st.Error)

	// The dead handle was evicted and closed.
	reg.mu.RLock()
	_, cached := reg.handles[key]
	reg.mu.RUnlock()
	require.False(t, cached)
	_, closed := fake.snapshot()
	require.True(t, closed)

	// The next open dials a fresh handle instead of reusing the dead one.
	a, st2, err := reg.GetOrOpen(context.Background(), key)
	require.NoError(t, err)
	require.NotSame(t, fake, a)
	require.True(t, st2.Connected)
}

func TestGetOrOpenUnknownKey(t *testing.T) {
	reg := newTestRegistry(t)
	_, _, err := reg.GetOrOpen(context.Background(), "nope")
	require.True(t, apperrors.Is(err, apperrors.NotFound))
}

func TestUpdateRecomputesFolderFlag(t *testing.T) {
	reg := newTestRegistry(t)

	key, err := reg.Create("alice", sqliteSpec(t, "local", ""))
	require.NoError(t, err)

	require.NoError(t, reg.Update("alice", key, &Spec{Name: "Prod", Engine: EngineFolder}))
	cfg, err := reg.Get(key)
	require.NoError(t, err)
	require.True(t, cfg.IsFolder)
	require.Equal(t, EngineFolder, cfg.Engine)
	require.Empty(t, cfg.Fields)

	// Editing the folder back into a real engine clears the flag again.
	require.NoError(t, reg.Update("alice", key, sqliteSpec(t, "local", "")))
	cfg, err = reg.Get(key)
	require.NoError(t, err)
	require.False(t, cfg.IsFolder)
	require.Equal(t, "sqlite", cfg.Engine)
}

func TestLoadRestoresStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "conn.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SavedConnection{}))
	repo := repository.NewConnectionRepositoryWithDB(db)

	v, err := vault.NewWithKey(make([]byte, 32))
	require.NoError(t, err)

	reg1 := New(repo, v, time.Second)
	key, err := reg1.Create("alice", &Spec{
		Name:   "pg",
		Engine: "postgres",
		Fields: map[string]string{"host": "h", "username": "u", "password": "pw", "database": "d"},
	})
	require.NoError(t, err)
	reg1.Close()

	reg2 := New(repo, v, time.Second)
	require.NoError(t, reg2.Load())
	cfg, err := reg2.Get(key)
	require.NoError(t, err)
	require.Equal(t, "pw", cfg.Fields["password"])
}

func TestImportConfigAssignsFreshKey(t *testing.T) {
	reg := newTestRegistry(t)

	key, err := reg.ImportConfig("alice", Config{
		Name:   "restored",
		Engine: "postgres",
		Fields: map[string]string{"host": "h", "username": "u", "password": "pw", "database": "d"},
		Group:  "Prod",
		Order:  3,
	})
	require.NoError(t, err)

	cfg, err := reg.Get(key)
	require.NoError(t, err)
	require.Equal(t, "Prod", cfg.Group)
	require.Equal(t, 3, cfg.Order)
}
