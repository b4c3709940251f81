package registry

import (
	"encoding/json"
	"strings"

	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/services/adapter"
)

// Spec is the caller-facing connection description: decrypted fields plus
// free-form extra options. It is validated before anything is encrypted or
// persisted.
type Spec struct {
	Name   string            `json:"name"`
	Engine string            `json:"type"`
	Fields map[string]string `json:"fields"`
	Extra  json.RawMessage   `json:"extra_options,omitempty"`
	Group  string            `json:"group,omitempty"`
}

// EngineFolder marks a group placeholder record rather than a real engine.
const EngineFolder = "folder"

// requiredFields lists the mandatory field names per engine kind. Engines not
// listed require nothing beyond what the adapter defaults.
var requiredFields = map[string][]string{
	adapter.EnginePostgres: {"host", "username", "password", "database"},
	adapter.EngineMySQL:    {"host", "username", "password", "database"},
	adapter.EngineOracle:   {"host", "username", "password", "database"},
	adapter.EngineMSSQL:    {"host"},
	adapter.EngineSQLite:   {"filePath"},
	// Document and search engines need a host; credentials are optional.
	adapter.EngineMongoDB:       {"host"},
	adapter.EngineOpenSearch:    {"host"},
	adapter.EngineElasticsearch: {"host"},
}

// validateSpec checks the spec before persistence. Folders skip field
// validation entirely.
func validateSpec(spec *Spec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return apperrors.New(apperrors.Validation, "connection name is required")
	}
	if spec.Engine == EngineFolder {
		return nil
	}
	kind := adapter.Normalize(spec.Engine)
	if !adapter.IsSupported(kind) {
		return apperrors.Newf(apperrors.Validation, "unsupported database type: %s", spec.Engine)
	}
	for _, f := range requiredFields[kind] {
		if strings.TrimSpace(spec.Fields[f]) == "" {
			return apperrors.Newf(apperrors.Validation, "missing required field: %s", f)
		}
	}
	if _, err := parseExtra(spec.Extra); err != nil {
		return err
	}
	return nil
}

// parseExtra decodes the extra-options blob. It must be a JSON object; arrays
// and scalars are rejected before any secret handling happens.
func parseExtra(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var extra map[string]interface{}
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, apperrors.New(apperrors.Validation, "extra options must be a JSON object")
	}
	return extra, nil
}
