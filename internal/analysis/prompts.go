package analysis

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// ErrNoPrompt is returned when a kind has no template.
var ErrNoPrompt = errors.New("no prompt template for analysis kind")

type promptEntry struct {
	Description string `yaml:"description"`
	Prompt      string `yaml:"prompt"`
}

// Prompts holds one parsed template per analysis kind.
type Prompts struct {
	templates map[Kind]*template.Template
}

// LoadPrompts reads templates from path, or the built-in set when path is
// empty.
func LoadPrompts(path string) (*Prompts, error) {
	raw := defaultPrompts
	if path != "" {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read prompts: %w", err)
		}
	}
	return ParsePrompts(raw)
}

// ParsePrompts parses a YAML document mapping kind to {prompt}.
func ParsePrompts(raw []byte) (*Prompts, error) {
	var doc map[string]promptEntry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	p := &Prompts{templates: make(map[Kind]*template.Template, len(doc))}
	for name, entry := range doc {
		if entry.Prompt == "" {
			continue
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(entry.Prompt)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		p.templates[Kind(name)] = tmpl
	}
	return p, nil
}

// Render fills the template of kind with data.
func (p *Prompts) Render(kind Kind, data any) (string, error) {
	tmpl, ok := p.templates[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoPrompt, kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", kind, err)
	}
	return buf.String(), nil
}
