// Package mcpcfg defines the MCP server records declared in omni.toml's
// [mcps] table and keeps the project's .mcp.json in step with them.
// Protocol handling lives elsewhere; these are configuration shapes only.
package mcpcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Transport identifies how an MCP server is reached.
type Transport string

const (
	// TransportStdio runs the server as a subprocess.
	TransportStdio Transport = "stdio"
	// TransportHTTP reaches the server over streamable HTTP.
	TransportHTTP Transport = "http"
	// TransportSSE reaches the server over server-sent events.
	TransportSSE Transport = "sse"
)

// ErrTransportFieldMissing means a server record lacks the field its
// transport requires (command for stdio, url for http/sse).
var ErrTransportFieldMissing = errors.New("missing required transport field")

// Config is one [mcps.<id>] entry.
type Config struct {
	Transport Transport         `toml:"transport,omitempty" json:"type,omitempty"`
	Command   string            `toml:"command,omitempty" json:"command,omitempty"`
	Args      []string          `toml:"args,omitempty" json:"args,omitempty"`
	URL       string            `toml:"url,omitempty" json:"url,omitempty"`
	Env       map[string]string `toml:"env,omitempty" json:"env,omitempty"`
	Headers   map[string]string `toml:"headers,omitempty" json:"headers,omitempty"`
}

// EffectiveTransport returns the declared transport, defaulting to stdio.
func (c Config) EffectiveTransport() Transport {
	if c.Transport == "" {
		return TransportStdio
	}
	return c.Transport
}

// Validate checks that the record carries the field its transport needs.
func (c Config) Validate() error {
	switch c.EffectiveTransport() {
	case TransportStdio:
		if c.Command == "" {
			return errors.Wrap(ErrTransportFieldMissing, "stdio transport requires 'command'")
		}
	case TransportHTTP, TransportSSE:
		if c.URL == "" {
			return errors.Wrapf(ErrTransportFieldMissing, "%s transport requires 'url'", c.EffectiveTransport())
		}
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

// Describe renders a one-line description for generated pseudo-capability
// descriptors.
func (c Config) Describe() string {
	switch c.EffectiveTransport() {
	case TransportStdio:
		parts := append([]string{c.Command}, c.Args...)
		return fmt.Sprintf("MCP server (stdio): %s", strings.Join(parts, " "))
	default:
		return fmt.Sprintf("MCP server (%s): %s", c.EffectiveTransport(), c.URL)
	}
}

// mcpServersKey is the top-level .mcp.json key holding server entries.
const mcpServersKey = "mcpServers"

// SyncMcpJSON rewrites the omni-managed entries of the .mcp.json file at
// path: entries are written keyed by capability id, ids in previousIDs
// that are no longer configured are removed, and entries omni never
// managed are left byte-for-byte alone. Returns the sorted ids written.
func SyncMcpJSON(path string, entries map[string]Config, previousIDs []string) ([]string, error) {
	doc := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	servers := map[string]json.RawMessage{}
	if raw, ok := doc[mcpServersKey]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s in %s", mcpServersKey, path)
		}
	}

	for _, id := range previousIDs {
		if _, still := entries[id]; !still {
			delete(servers, id)
		}
	}

	ids := make([]string, 0, len(entries))
	for id, cfg := range entries {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal server %s", id)
		}
		servers[id] = raw
		ids = append(ids, id)
	}
	sort.Strings(ids)

	raw, err := json.Marshal(servers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal servers")
	}
	doc[mcpServersKey] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal .mcp.json")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", path)
	}
	return ids, nil
}
