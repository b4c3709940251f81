// Package backup produces and restores password-encrypted archives of a
// user's saved connections.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/services/registry"
	"dbmonitorapi/services/vault"
)

const archiveVersion = 1

// archive is the serialised snapshot inside the encrypted blob.
type archive struct {
	Version     int            `json:"version"`
	ExportedAt  string         `json:"exported_at"`
	Connections []archiveEntry `json:"connections"`
}

type archiveEntry struct {
	Name     string                 `json:"name"`
	Engine   string                 `json:"type"`
	IsFolder bool                   `json:"is_folder,omitempty"`
	Fields   map[string]string      `json:"fields,omitempty"`
	Extra    map[string]interface{} `json:"extra_options,omitempty"`
	Group    string                 `json:"group,omitempty"`
	Order    int                    `json:"order"`
}

// Exporter serialises, encrypts and restores connection sets.
type Exporter struct {
	reg *registry.Registry
}

// New creates an exporter over reg.
func New(reg *registry.Registry) *Exporter {
	return &Exporter{reg: reg}
}

// Export gathers every connection owned by userID with secrets decrypted,
// encrypts the snapshot under password, and returns the archive data with a
// timestamped filename. The archive is never stored server-side.
func (e *Exporter) Export(userID, password string) (data, filename string, err error) {
	if password == "" {
		return "", "", apperrors.New(apperrors.Validation, "password is required")
	}
	entries := e.reg.List(userID, nil)
	snap := archive{
		Version:     archiveVersion,
		ExportedAt:  time.Now().UTC().Format(time.RFC3339),
		Connections: make([]archiveEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		if entry.UserID != userID {
			continue
		}
		snap.Connections = append(snap.Connections, archiveEntry{
			Name:     entry.Name,
			Engine:   entry.Engine,
			IsFolder: entry.IsFolder,
			Fields:   entry.Fields,
			Extra:    entry.Extra,
			Group:    entry.Group,
			Order:    entry.Order,
		})
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return "", "", fmt.Errorf("encode backup: %w", err)
	}
	data, err = vault.EncryptWithPassword(raw, password)
	if err != nil {
		return "", "", err
	}
	filename = fmt.Sprintf("db_monitor_backup_%s.enc", time.Now().Format("20060102_150405"))
	logger.Infof("Exported %d connections for %s", len(snap.Connections), userID)
	return data, filename, nil
}

// Import decrypts an archive and inserts every entry as a brand-new
// connection for userID, preserving group and order. A wrong password is a
// Crypto error; a structurally damaged archive is a Validation error.
func (e *Exporter) Import(userID, password, data string) (int, error) {
	if password == "" || data == "" {
		return 0, apperrors.New(apperrors.Validation, "password and archive data are required")
	}
	raw, err := vault.DecryptWithPassword(data, password)
	if err != nil {
		return 0, err
	}
	var snap archive
	if err := json.Unmarshal(raw, &snap); err != nil {
		return 0, apperrors.Wrap(apperrors.Validation, "archive contents are not a valid backup", err)
	}
	if snap.Version != archiveVersion {
		return 0, apperrors.Newf(apperrors.Validation, "unsupported backup version: %d", snap.Version)
	}

	imported := 0
	for _, entry := range snap.Connections {
		cfg := registry.Config{
			Name:     entry.Name,
			Engine:   entry.Engine,
			IsFolder: entry.IsFolder || entry.Engine == registry.EngineFolder,
			Fields:   entry.Fields,
			Extra:    entry.Extra,
			Group:    entry.Group,
			Order:    entry.Order,
		}
		if _, err := e.reg.ImportConfig(userID, cfg); err != nil {
			logger.Errorf("Import of %q failed: %v", entry.Name, err)
			continue
		}
		imported++
	}
	logger.Infof("Imported %d connections for %s", imported, userID)
	return imported, nil
}
