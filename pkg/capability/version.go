package capability

import (
	"encoding/json"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// Version source labels recorded in fetch results and the lock file.
const (
	VersionSourceCapabilityToml = "capability.toml"
	VersionSourcePluginJSON     = "plugin.json"
	VersionSourcePackageJSON    = "package.json"
	VersionSourceCommit         = "commit"
	VersionSourceContentHash    = "content_hash"
)

// DetectVersion resolves a display version for dir by probing known
// metadata files in priority order: capability.toml, plugin.json,
// package.json, then the caller-supplied fallback (a short commit hash
// for Git sources, a short content hash for file sources). Probes
// swallow parse errors and fall through; version detection never fails
// a fetch.
func DetectVersion(dir, fallback, fallbackSource string) (string, string) {
	if v := capabilityTomlVersion(dir); v != "" {
		return v, VersionSourceCapabilityToml
	}
	if v := pluginJSONVersion(dir); v != "" {
		return v, VersionSourcePluginJSON
	}
	if v := packageJSONVersion(dir); v != "" {
		return v, VersionSourcePackageJSON
	}
	return fallback, fallbackSource
}

func capabilityTomlVersion(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFileName))
	if err != nil {
		return ""
	}
	var desc Descriptor
	if err := toml.Unmarshal(data, &desc); err != nil {
		return ""
	}
	// A descriptor omni generated carries a fallback version, not an
	// authored one; probing it would freeze the version at whatever
	// revision was current when it was synthesized.
	if desc.IsGenerated() {
		return ""
	}
	return desc.Capability.Version
}

func pluginJSONVersion(dir string) string {
	if m := loadPluginManifest(dir); m != nil {
		return m.Version
	}
	return ""
}

func packageJSONVersion(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Version
}
