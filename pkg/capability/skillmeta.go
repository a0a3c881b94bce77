package capability

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"
)

// SkillMarkerFile is the marker file identifying a skill directory.
const SkillMarkerFile = "SKILL.md"

// SkillMeta is the YAML frontmatter of a SKILL.md file.
type SkillMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadSkillMeta parses the YAML frontmatter of a SKILL.md file. Both
// name and description are required; a skill without them is rejected
// before materialization.
func LoadSkillMeta(path string) (*SkillMeta, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse skill markdown")
	}

	raw := meta.Get(pctx)
	if raw == nil {
		return nil, errors.New("missing frontmatter")
	}

	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to re-encode frontmatter")
	}
	var sm SkillMeta
	if err := yaml.Unmarshal(encoded, &sm); err != nil {
		return nil, errors.Wrap(err, "failed to decode frontmatter")
	}

	if sm.Name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if sm.Description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}
	return &sm, nil
}
