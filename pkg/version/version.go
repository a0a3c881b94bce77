// Package version exposes the omni build version.
package version

import (
	"encoding/json"
	"fmt"
)

var (
	// Version is the current omni version, set at build time.
	Version = "dev"

	// GitCommit is the commit SHA omni was built from, set at build time.
	GitCommit = "unknown"
)

// Info holds version information for display.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// Get returns the build's version information.
func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit}
}

// String renders the version info for terminal output.
func (i Info) String() string {
	return fmt.Sprintf("omni %s (commit %s)", i.Version, i.GitCommit)
}

// JSON renders the version info as indented JSON.
func (i Info) JSON() (string, error) {
	b, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
