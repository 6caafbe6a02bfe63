// Package template expands build-time placeholders in library manifests,
// so that one manifest can carry the version or namespace of the build it
// ships with:
//
//	name: textkit
//	version: "{{ .vars.version }}"
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/reglet-dev/nativeabi/domain/ports"
)

// templateConfig holds configuration for the GoTemplateEngine.
type templateConfig struct {
	strict bool
}

func defaultTemplateConfig() templateConfig {
	return templateConfig{
		strict: true,
	}
}

// TemplateOption configures a GoTemplateEngine.
type TemplateOption func(*templateConfig)

// WithStrict enables/disables strict mode for missing keys.
// When enabled (default), rendering fails if a referenced variable is missing.
func WithStrict(enabled bool) TemplateOption {
	return func(c *templateConfig) {
		c.strict = enabled
	}
}

// GoTemplateEngine implements ports.TemplateEngine with text/template.
type GoTemplateEngine struct {
	config templateConfig
}

// NewGoTemplateEngine creates a new GoTemplateEngine.
func NewGoTemplateEngine(opts ...TemplateOption) ports.TemplateEngine {
	cfg := defaultTemplateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GoTemplateEngine{config: cfg}
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

// Render expands raw with vars available as {{ .vars.key }}. A document
// without placeholders is returned unchanged.
func (e *GoTemplateEngine) Render(raw []byte, vars map[string]any) ([]byte, error) {
	if !bytes.Contains(raw, []byte("{{")) {
		return raw, nil
	}

	tmpl := template.New("manifest").Funcs(funcs)
	if e.config.strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	tmpl, err := tmpl.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse manifest template: %w", err)
	}

	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{"vars": vars}); err != nil {
		return nil, fmt.Errorf("execute manifest template: %w", err)
	}
	return buf.Bytes(), nil
}
