// Package manifest tracks which artifacts each capability produced on the
// last sync, so that disabling a capability removes exactly its artifacts
// and never touches user-owned files.
package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/logger"
)

// FileName is the manifest file name inside the state directory.
const FileName = "manifest.json"

// CurrentVersion is the manifest schema version.
const CurrentVersion = 1

// Resources lists the artifact names one capability produced. Names, not
// content: the reconciler resolves them against provider locations.
type Resources struct {
	Skills    []string `json:"skills"`
	Rules     []string `json:"rules"`
	Commands  []string `json:"commands"`
	Subagents []string `json:"subagents"`
	MCPs      []string `json:"mcps"`
}

// Manifest is the persisted record of the last sync's outputs.
type Manifest struct {
	Version      int                  `json:"version"`
	SyncedAt     time.Time            `json:"syncedAt"`
	Capabilities map[string]Resources `json:"capabilities"`
}

// New returns an empty manifest at the current schema version.
func New() *Manifest {
	return &Manifest{
		Version:      CurrentVersion,
		Capabilities: map[string]Resources{},
	}
}

// Load reads the manifest at path. Missing or malformed files yield an
// empty manifest; a corrupt manifest must never block a sync.
func Load(ctx context.Context, path string) *Manifest {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.G(ctx).WithError(err).WithField("path", path).Warn("failed to read manifest, starting empty")
		}
		return New()
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		logger.G(ctx).WithError(err).WithField("path", path).Warn("invalid manifest, starting empty")
		return New()
	}
	if m.Capabilities == nil {
		m.Capabilities = map[string]Resources{}
	}
	return &m
}

// Save writes the manifest atomically, stamping SyncedAt.
func (m *Manifest) Save(path string) error {
	m.Version = CurrentVersion
	m.SyncedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal manifest")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to rename %s to %s", tmp, path)
	}
	return nil
}

// SameResources reports whether two manifests record the same artifacts,
// ignoring the SyncedAt timestamp. Saving is skipped when nothing changed
// to avoid timestamp churn.
func (m *Manifest) SameResources(other *Manifest) bool {
	return reflect.DeepEqual(m.Capabilities, other.Capabilities)
}
