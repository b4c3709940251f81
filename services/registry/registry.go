// Package registry owns the set of saved connection configurations and the
// cache of live engine adapters. All structural mutation happens under one
// lock; adapter construction and probing run outside it so a slow database
// never blocks unrelated registry calls.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"dbmonitorapi/models"
	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/repository"
	"dbmonitorapi/services/adapter"
	"dbmonitorapi/services/vault"
)

const keyLength = 12

// Config is the in-memory, decrypted form of a saved connection.
type Config struct {
	DBKey     string
	UserID    string
	Name      string
	Engine    string
	IsFolder  bool
	Fields    map[string]string
	Extra     map[string]interface{}
	Group     string
	Order     int
	CreatedAt string
}

// Entry is a Config together with the last known probe status, as returned
// by List.
type Entry struct {
	Config
	Status *adapter.Status
}

type liveHandle struct {
	adapter adapter.Adapter
	status  adapter.Status
}

// Registry mediates every read and mutation of connection configurations.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
	handles map[string]*liveHandle

	repo         repository.ConnectionRepository
	vault        *vault.Vault
	probeTimeout time.Duration
}

// New creates an empty registry. Call Load to populate it from the store.
func New(repo repository.ConnectionRepository, v *vault.Vault, probeTimeout time.Duration) *Registry {
	return &Registry{
		configs:      make(map[string]*Config),
		handles:      make(map[string]*liveHandle),
		repo:         repo,
		vault:        v,
		probeTimeout: probeTimeout,
	}
}

// Load decrypts every persisted record into the in-memory cache. Records
// that fail to decrypt are skipped with a log entry rather than aborting
// startup.
func (r *Registry) Load() error {
	records, err := r.repo.ListAll()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range records {
		cfg, err := r.decode(&records[i])
		if err != nil {
			logger.Errorf("Skipping connection %s: %v", records[i].DBKey, err)
			continue
		}
		r.configs[cfg.DBKey] = cfg
	}
	logger.Infof("Loaded %d saved connections", len(r.configs))
	return nil
}

// Get returns a copy of the config for key.
func (r *Registry) Get(key string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[key]
	if !ok {
		return nil, apperrors.Newf(apperrors.NotFound, "connection not found: %s", key)
	}
	cp := cfg.clone()
	return &cp, nil
}

// Owner returns the owning user id for key.
func (r *Registry) Owner(key string) (string, error) {
	cfg, err := r.Get(key)
	if err != nil {
		return "", err
	}
	return cfg.UserID, nil
}

// List returns the user's own configs plus any in grantedKeys, sorted by
// (group, order, name), each with the cached status if one exists.
func (r *Registry) List(userID string, grantedKeys []string) []Entry {
	granted := make(map[string]bool, len(grantedKeys))
	for _, k := range grantedKeys {
		granted[k] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.configs))
	for key, cfg := range r.configs {
		if cfg.UserID != userID && !granted[key] {
			continue
		}
		e := Entry{Config: cfg.clone()}
		if h, ok := r.handles[key]; ok {
			st := h.status
			e.Status = &st
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Create validates, encrypts and persists a new connection for userID,
// returning the generated key. Saving into a group with no folder marker
// creates the marker as well.
func (r *Registry) Create(userID string, spec *Spec) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}
	extra, _ := parseExtra(spec.Extra)

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := &Config{
		DBKey:     r.newKeyLocked(),
		UserID:    userID,
		Name:      spec.Name,
		Engine:    adapter.Normalize(spec.Engine),
		IsFolder:  spec.Engine == EngineFolder,
		Fields:    copyFields(spec.Fields),
		Extra:     extra,
		Group:     spec.Group,
		Order:     r.nextOrderLocked(userID, spec.Group),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if cfg.IsFolder {
		cfg.Engine = EngineFolder
		cfg.Fields = nil
	}

	if err := r.persistLocked(cfg); err != nil {
		return "", err
	}
	r.configs[cfg.DBKey] = cfg

	if !cfg.IsFolder && cfg.Group != "" && !r.folderExistsLocked(userID, cfg.Group) {
		if err := r.createFolderMarkerLocked(userID, cfg.Group); err != nil {
			logger.Warnf("Could not create folder marker %q: %v", cfg.Group, err)
		}
	}
	return cfg.DBKey, nil
}

// Update rewrites an existing connection owned by userID. A blank password
// keeps the stored value. The cached handle is evicted so the next open
// picks up the new parameters.
func (r *Registry) Update(userID, key string, spec *Spec) error {
	if err := validateSpecForUpdate(spec); err != nil {
		return err
	}
	extra, _ := parseExtra(spec.Extra)

	r.mu.Lock()
	existing, ok := r.configs[key]
	if !ok {
		r.mu.Unlock()
		return apperrors.Newf(apperrors.NotFound, "connection not found: %s", key)
	}
	if existing.UserID != userID {
		r.mu.Unlock()
		return apperrors.New(apperrors.Authz, "not the owner of this connection")
	}

	updated := existing.clone()
	updated.Name = spec.Name
	updated.Engine = adapter.Normalize(spec.Engine)
	updated.IsFolder = spec.Engine == EngineFolder
	updated.Group = spec.Group
	updated.Extra = extra
	fields := copyFields(spec.Fields)
	if fields["password"] == "" {
		fields["password"] = existing.Fields["password"]
	}
	updated.Fields = fields
	if updated.IsFolder {
		updated.Engine = EngineFolder
		updated.Fields = nil
	}

	if err := r.persistLocked(&updated); err != nil {
		r.mu.Unlock()
		return err
	}
	r.configs[key] = &updated
	h := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	closeHandle(key, h)
	return nil
}

// Delete removes a connection owned by userID, evicting and closing any live
// handle. Grant cleanup is the caller's responsibility.
func (r *Registry) Delete(userID, key string) error {
	r.mu.Lock()
	cfg, ok := r.configs[key]
	if !ok {
		r.mu.Unlock()
		return apperrors.Newf(apperrors.NotFound, "connection not found: %s", key)
	}
	if cfg.UserID != userID {
		r.mu.Unlock()
		return apperrors.New(apperrors.Authz, "not the owner of this connection")
	}
	if _, err := r.repo.DeleteByKey(key); err != nil {
		r.mu.Unlock()
		return err
	}
	delete(r.configs, key)
	h := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	closeHandle(key, h)
	return nil
}

// ReorderUpdate moves one connection to a group position.
type ReorderUpdate struct {
	DBKey string `json:"key"`
	Group string `json:"group"`
	Order int    `json:"order"`
}

// Reorder applies the whole batch atomically. Keys not owned by userID
// reject the entire batch before anything is written.
func (r *Registry) Reorder(userID string, updates []ReorderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make([]repository.MetadataUpdate, 0, len(updates))
	for _, u := range updates {
		cfg, ok := r.configs[u.DBKey]
		if !ok {
			return apperrors.Newf(apperrors.NotFound, "connection not found: %s", u.DBKey)
		}
		if cfg.UserID != userID {
			return apperrors.New(apperrors.Authz, "not the owner of this connection")
		}
		batch = append(batch, repository.MetadataUpdate{
			DBKey: u.DBKey, GroupName: u.Group, SortOrder: u.Order,
		})
	}
	if err := r.repo.UpdateMetadataBatch(batch); err != nil {
		return err
	}
	for _, u := range updates {
		cfg := r.configs[u.DBKey]
		cfg.Group = u.Group
		cfg.Order = u.Order
	}
	return nil
}

// DeleteFolder removes the folder marker named name and moves its member
// connections to the root group, preserving their relative order.
func (r *Registry) DeleteFolder(userID, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.New(apperrors.Validation, "folder name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var markerKey string
	for key, cfg := range r.configs {
		if cfg.UserID == userID && cfg.IsFolder && cfg.Name == name {
			markerKey = key
			break
		}
	}
	if markerKey != "" {
		if _, err := r.repo.DeleteByKey(markerKey); err != nil {
			return err
		}
		delete(r.configs, markerKey)
	}
	if err := r.repo.ClearGroup(userID, name); err != nil {
		return err
	}
	for _, cfg := range r.configs {
		if cfg.UserID == userID && cfg.Group == name {
			cfg.Group = ""
		}
	}
	return nil
}

// GetOrOpen returns the live adapter for key, building, probing and caching
// one if no healthy handle exists. The probe runs outside the registry lock.
func (r *Registry) GetOrOpen(ctx context.Context, key string) (adapter.Adapter, adapter.Status, error) {
	r.mu.RLock()
	cfg, ok := r.configs[key]
	if !ok {
		r.mu.RUnlock()
		return nil, adapter.Status{}, apperrors.Newf(apperrors.NotFound, "connection not found: %s", key)
	}
	if cfg.IsFolder {
		r.mu.RUnlock()
		return nil, adapter.Status{}, apperrors.New(apperrors.Unsupported, "folders cannot be opened")
	}
	if h, cached := r.handles[key]; cached && h.status.Connected {
		a, st := h.adapter, h.status
		r.mu.RUnlock()
		return a, st, nil
	}
	cp := cfg.clone()
	r.mu.RUnlock()

	a, err := adapter.New(cp.Engine, cp.Fields, cp.Extra)
	if err != nil {
		return nil, adapter.Status{}, err
	}
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	st := a.Probe(probeCtx)
	cancel()

	r.mu.Lock()
	if _, stillThere := r.configs[key]; !stillThere {
		// Deleted while we were dialing; discard the fresh handle.
		r.mu.Unlock()
		_ = a.Close()
		return nil, adapter.Status{}, apperrors.Newf(apperrors.NotFound, "connection not found: %s", key)
	}
	old := r.handles[key]
	r.handles[key] = &liveHandle{adapter: a, status: st}
	r.mu.Unlock()
	if old != nil && old.adapter != a {
		closeHandle(key, old)
	}
	return a, st, nil
}

// Probe refreshes the status of key for the health monitor. Unlike GetOrOpen,
// it always pings the live handle, so a connection that died since the last
// check is reported offline. A failed probe evicts the handle so the next
// open rebuilds it from scratch.
func (r *Registry) Probe(ctx context.Context, key string) adapter.Status {
	r.mu.RLock()
	h := r.handles[key]
	r.mu.RUnlock()

	var st adapter.Status
	if h != nil {
		probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
		st = h.adapter.Probe(probeCtx)
		cancel()
	} else {
		var err error
		if _, st, err = r.GetOrOpen(ctx, key); err != nil {
			return adapter.Status{Connected: false, Error: err.Error(), LastCheck: time.Now()}
		}
		r.mu.RLock()
		h = r.handles[key]
		r.mu.RUnlock()
	}

	r.mu.Lock()
	cur, cached := r.handles[key]
	switch {
	case !cached || cur != h:
		// Evicted or replaced while probing; leave the newer handle alone.
		r.mu.Unlock()
	case st.Connected:
		cur.status = st
		r.mu.Unlock()
	default:
		delete(r.handles, key)
		r.mu.Unlock()
		closeHandle(key, cur)
	}
	return st
}

// TestSpec probes a connection description without persisting anything.
func (r *Registry) TestSpec(ctx context.Context, spec *Spec) (adapter.Status, error) {
	if err := validateSpec(spec); err != nil {
		return adapter.Status{}, err
	}
	if spec.Engine == EngineFolder {
		return adapter.Status{Connected: true, LastCheck: time.Now()}, nil
	}
	extra, _ := parseExtra(spec.Extra)
	a, err := adapter.New(spec.Engine, spec.Fields, extra)
	if err != nil {
		return adapter.Status{}, err
	}
	defer a.Close()
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	return a.Probe(probeCtx), nil
}

// ImportConfig inserts a decrypted config as a brand-new record under a
// fresh key, preserving the supplied group and order. Used by backup restore,
// where keys are not stable across machines.
func (r *Registry) ImportConfig(userID string, cfg Config) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.DBKey = r.newKeyLocked()
	cfg.UserID = userID
	if cfg.CreatedAt == "" {
		cfg.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := r.persistLocked(&cfg); err != nil {
		return "", err
	}
	r.configs[cfg.DBKey] = &cfg
	return cfg.DBKey, nil
}

// TrackedKeys returns every non-folder key currently registered.
func (r *Registry) TrackedKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.configs))
	for key, cfg := range r.configs {
		if !cfg.IsFolder {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Close evicts every handle. Called on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*liveHandle)
	r.mu.Unlock()
	for key, h := range handles {
		closeHandle(key, h)
	}
}

func closeHandle(key string, h *liveHandle) {
	if h == nil {
		return
	}
	if err := h.adapter.Close(); err != nil {
		logger.Warnf("Closing handle for %s: %v", key, err)
	}
}

// validateSpecForUpdate relaxes the password requirement: blank means keep.
func validateSpecForUpdate(spec *Spec) error {
	if spec.Engine == EngineFolder {
		return validateSpec(spec)
	}
	cp := *spec
	cp.Fields = copyFields(spec.Fields)
	if cp.Fields["password"] == "" {
		cp.Fields["password"] = "\x00keep"
	}
	return validateSpec(&cp)
}

func (c *Config) clone() Config {
	cp := *c
	cp.Fields = copyFields(c.Fields)
	if c.Extra != nil {
		cp.Extra = make(map[string]interface{}, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}

func copyFields(fields map[string]string) map[string]string {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return cp
}

func (r *Registry) folderExistsLocked(userID, name string) bool {
	for _, cfg := range r.configs {
		if cfg.UserID == userID && cfg.IsFolder && cfg.Name == name {
			return true
		}
	}
	return false
}

func (r *Registry) createFolderMarkerLocked(userID, name string) error {
	cfg := &Config{
		DBKey:     r.newKeyLocked(),
		UserID:    userID,
		Name:      name,
		Engine:    EngineFolder,
		IsFolder:  true,
		Group:     name,
		Order:     r.nextOrderLocked(userID, name),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.persistLocked(cfg); err != nil {
		return err
	}
	r.configs[cfg.DBKey] = cfg
	return nil
}

func (r *Registry) nextOrderLocked(userID, group string) int {
	max := -1
	for _, cfg := range r.configs {
		if cfg.UserID == userID && cfg.Group == group && cfg.Order > max {
			max = cfg.Order
		}
	}
	return max + 1
}

const keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func (r *Registry) newKeyLocked() string {
	for {
		b := make([]byte, keyLength)
		for i := range b {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyAlphabet))))
			if err != nil {
				panic(err) // crypto/rand failure is unrecoverable
			}
			b[i] = keyAlphabet[n.Int64()]
		}
		key := string(b)
		if _, taken := r.configs[key]; !taken {
			return key
		}
	}
}

// persistLocked encrypts the sensitive columns and writes the record through
// to the store.
func (r *Registry) persistLocked(cfg *Config) error {
	rec := models.SavedConnection{
		DBKey:       cfg.DBKey,
		UserID:      cfg.UserID,
		DisplayName: cfg.Name,
		EngineType:  cfg.Engine,
		IsFolder:    cfg.IsFolder,
		GroupName:   cfg.Group,
		SortOrder:   cfg.Order,
		CreatedAt:   cfg.CreatedAt,
	}
	var err error
	if rec.HostEnc, err = r.sealField(cfg.Fields["host"]); err != nil {
		return err
	}
	if rec.PortEnc, err = r.sealField(cfg.Fields["port"]); err != nil {
		return err
	}
	if rec.UsernameEnc, err = r.sealField(cfg.Fields["username"]); err != nil {
		return err
	}
	if rec.PasswordEnc, err = r.sealField(cfg.Fields["password"]); err != nil {
		return err
	}
	if rec.DatabaseEnc, err = r.sealField(cfg.Fields["database"]); err != nil {
		return err
	}
	if rec.FilePathEnc, err = r.sealField(cfg.Fields["filePath"]); err != nil {
		return err
	}
	if len(cfg.Extra) > 0 {
		raw, err := json.Marshal(cfg.Extra)
		if err != nil {
			return apperrors.Wrap(apperrors.Validation, "encode extra options", err)
		}
		if rec.ExtraEnc, err = r.sealField(string(raw)); err != nil {
			return err
		}
	}
	return r.repo.Save(&rec)
}

func (r *Registry) sealField(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return r.vault.Encrypt(value)
}

func (r *Registry) openField(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return r.vault.Decrypt(token)
}

// decode decrypts a stored record back into a Config.
func (r *Registry) decode(rec *models.SavedConnection) (*Config, error) {
	cfg := &Config{
		DBKey:     rec.DBKey,
		UserID:    rec.UserID,
		Name:      rec.DisplayName,
		Engine:    rec.EngineType,
		IsFolder:  rec.IsFolder,
		Group:     rec.GroupName,
		Order:     rec.SortOrder,
		CreatedAt: rec.CreatedAt,
		Fields:    map[string]string{},
	}
	pairs := []struct {
		field string
		token string
	}{
		{"host", rec.HostEnc},
		{"port", rec.PortEnc},
		{"username", rec.UsernameEnc},
		{"password", rec.PasswordEnc},
		{"database", rec.DatabaseEnc},
		{"filePath", rec.FilePathEnc},
	}
	for _, p := range pairs {
		v, err := r.openField(p.token)
		if err != nil {
			return nil, err
		}
		if v != "" {
			cfg.Fields[p.field] = v
		}
	}
	if rec.ExtraEnc != "" {
		raw, err := r.openField(rec.ExtraEnc)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &cfg.Extra); err != nil {
			return nil, apperrors.Wrap(apperrors.Validation, "decode extra options", err)
		}
	}
	return cfg, nil
}
