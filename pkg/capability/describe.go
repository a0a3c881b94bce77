package capability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxDescriptionLen caps generated descriptions extracted from README
// files so untrusted content cannot balloon the descriptor.
const maxDescriptionLen = 200

// Provenance records where wrapped content came from; it is embedded in
// the generated descriptor's metadata so later runs can recognize the
// descriptor as synthesized.
type Provenance struct {
	Repository   string
	Commit       string
	SourcePath   string
	ContentHash  string
	FromOmniToml bool
}

// pluginManifest is the subset of .claude-plugin/plugin.json we read.
type pluginManifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
}

func loadPluginManifest(dir string) *pluginManifest {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(PluginManifestPath)))
	if err != nil {
		return nil
	}
	var m pluginManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return &m
}

// GenerateDescriptor synthesizes a descriptor for wrapped content.
// Description precedence: plugin.json description, then the first real
// paragraph of README.md, then a counts-based summary of the discovered
// content.
func GenerateDescriptor(id, version string, dc *DiscoveredContent, dir string, prov Provenance) *Descriptor {
	name := id
	description := ""
	var author *Author

	if m := loadPluginManifest(dir); m != nil {
		if m.Name != "" {
			name = m.Name
		}
		description = strings.TrimSpace(m.Description)
		if m.Author != nil && m.Author.Name != "" {
			author = &Author{Name: m.Author.Name, Email: m.Author.Email}
		}
	}
	if description == "" {
		description = readmeDescription(dir)
	}
	if description == "" {
		description = countsSummary(dc)
	}

	metadata := map[string]any{}
	if prov.FromOmniToml {
		metadata["generated_from_omni_toml"] = true
	} else {
		metadata["wrapped"] = true
	}
	if prov.Repository != "" {
		metadata["repository"] = prov.Repository
	}
	if prov.Commit != "" {
		metadata["commit"] = prov.Commit
	}
	if prov.SourcePath != "" {
		metadata["source_path"] = prov.SourcePath
	}
	if prov.ContentHash != "" {
		metadata["content_hash"] = prov.ContentHash
	}

	return &Descriptor{
		Capability: Spec{
			ID:          id,
			Name:        name,
			Version:     version,
			Description: description,
			Author:      author,
			Metadata:    metadata,
		},
	}
}

// readmeDescription extracts the first non-heading, non-code-fence,
// non-image paragraph of README.md, capped at maxDescriptionLen runes.
// Returns "" when no README or no suitable paragraph exists.
func readmeDescription(dir string) string {
	src := readReadme(dir)
	if src == nil {
		return ""
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindParagraph {
			continue
		}
		content := strings.TrimSpace(inlineText(n, src))
		if content == "" {
			continue
		}
		return capLength(collapseWhitespace(content), maxDescriptionLen)
	}
	return ""
}

func readReadme(dir string) []byte {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(e.Name(), "README.md") {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil
			}
			return data
		}
	}
	return nil
}

// inlineText concatenates the text of an inline tree, skipping image
// subtrees so badge-only paragraphs come out empty.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.Kind() {
		case ast.KindImage:
			continue
		case ast.KindText:
			t := c.(*ast.Text)
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case ast.KindCodeSpan, ast.KindLink, ast.KindEmphasis:
			b.WriteString(inlineText(c, src))
		default:
			b.WriteString(inlineText(c, src))
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capLength(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// countsSummary renders a description like "3 skills, 1 command" from
// the discovered content.
func countsSummary(dc *DiscoveredContent) string {
	if dc == nil {
		return "Wrapped capability"
	}
	var parts []string
	if n := len(dc.Skills); n > 0 {
		parts = append(parts, pluralize(n, "skill"))
	}
	if n := len(dc.Agents); n > 0 {
		parts = append(parts, pluralize(n, "agent"))
	}
	if n := len(dc.Commands); n > 0 {
		parts = append(parts, pluralize(n, "command"))
	}
	if dc.RulesDir != "" {
		parts = append(parts, "rules")
	}
	if dc.DocsDir != "" {
		parts = append(parts, "docs")
	}
	if len(parts) == 0 {
		return "Wrapped capability"
	}
	return strings.Join(parts, ", ")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
