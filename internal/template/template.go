// Package template holds the registry of static-site-generator templates a
// site can be built from, and fetches each template's configuration schema.
package template

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"
)

const schemaFetchTimeout = 15 * time.Second

// Template describes one static-site-generator template
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Framework   string `json:"framework"`
	Description string `json:"description"`
	Preview     string `json:"preview"`
	SchemaURL   string `json:"schemaUrl"`
}

// SchemaField is one configurable field of a template, as declared in the
// template repo's config.schema.yaml
type SchemaField struct {
	Name        string        `json:"name" yaml:"name"`
	Type        string        `json:"type" yaml:"type"`
	Label       string        `json:"label" yaml:"label"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Required    bool          `json:"required,omitempty" yaml:"required"`
	Default     interface{}   `json:"default,omitempty" yaml:"default"`
	Placeholder string        `json:"placeholder,omitempty" yaml:"placeholder"`
	Options     []FieldOption `json:"options,omitempty" yaml:"options"`
	Validation  *Validation   `json:"validation,omitempty" yaml:"validation"`
}

// FieldOption is one choice of a select-style field
type FieldOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Validation constrains a field's value
type Validation struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Message string `json:"message" yaml:"message"`
}

// schema is the wire shape of config.schema.yaml
type schema struct {
	Fields []SchemaField `yaml:"fields"`
}

// registry lists the available templates. Each entry points at a template
// repository whose main branch carries the config schema.
var registry = []Template{
	{
		ID:          "replica-template-00",
		Name:        "Starlight",
		Framework:   "Astro",
		Description: "Documentation site built on Starlight",
		Preview:     "https://replica-template-00.xiyo.dev",
		SchemaURL:   "https://raw.githubusercontent.com/XIYO/replica-template-00/main/config.schema.yaml",
	},
	{
		ID:          "replica-template-01",
		Name:        "VitePress",
		Framework:   "Vue",
		Description: "Documentation site built on VitePress",
		Preview:     "https://replica-template-01.xiyo.dev",
		SchemaURL:   "https://raw.githubusercontent.com/XIYO/replica-template-01/main/config.schema.yaml",
	},
	{
		ID:          "replica-template-02",
		Name:        "Docusaurus",
		Framework:   "React",
		Description: "Documentation site built on Docusaurus",
		Preview:     "https://replica-template-02.xiyo.dev",
		SchemaURL:   "https://raw.githubusercontent.com/XIYO/replica-template-02/main/config.schema.yaml",
	},
}

// All returns every registered template
func All() []Template {
	out := make([]Template, len(registry))
	copy(out, registry)
	return out
}

// ByID returns the template with the given id, or nil when unknown
func ByID(id string) *Template {
	for i := range registry {
		if registry[i].ID == id {
			return &registry[i]
		}
	}
	return nil
}

// FetchSchema downloads and parses a template's config schema. A schema
// without a fields list yields an empty slice rather than an error.
func FetchSchema(ctx context.Context, tmpl *Template) ([]SchemaField, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tmpl.SchemaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema request: %w", err)
	}

	client := &http.Client{Timeout: schemaFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("schema fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var s schema
	if err := yaml.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	if s.Fields == nil {
		return []SchemaField{}, nil
	}
	return s.Fields, nil
}
