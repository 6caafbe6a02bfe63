package host

import (
	"fmt"

	"github.com/reglet-dev/nativeabi/application/manifest"
	apptemplate "github.com/reglet-dev/nativeabi/application/template"
	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/infrastructure/parser"
)

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	validator       ports.ManifestValidator
	templateEngine  ports.TemplateEngine
	parser          ports.ManifestParser
	strictTemplates bool // Fail on missing template variables
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		parser:          parser.NewYamlManifestParser(),
		validator:       manifest.NewValidator(),
		strictTemplates: true,
	}
}

// Loader orchestrates the manifest loading pipeline: template expansion,
// parsing and validation.
type Loader struct {
	config loaderConfig
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithValidator replaces the manifest validator. nil disables validation.
func WithValidator(v ports.ManifestValidator) LoaderOption {
	return func(c *loaderConfig) {
		c.validator = v
	}
}

// WithParser sets a custom manifest parser.
func WithParser(p ports.ManifestParser) LoaderOption {
	return func(c *loaderConfig) {
		c.parser = p
	}
}

// WithTemplateEngine sets a template engine.
func WithTemplateEngine(t ports.TemplateEngine) LoaderOption {
	return func(c *loaderConfig) {
		c.templateEngine = t
	}
}

// WithStrictTemplates enables/disables strict template mode.
// When enabled (default), loading fails if a referenced variable is missing.
func WithStrictTemplates(enabled bool) LoaderOption {
	return func(c *loaderConfig) {
		c.strictTemplates = enabled
	}
}

// NewLoader creates a new Loader with defaults.
func NewLoader(opts ...LoaderOption) *Loader {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.templateEngine == nil {
		cfg.templateEngine = apptemplate.NewGoTemplateEngine(
			apptemplate.WithStrict(cfg.strictTemplates),
		)
	}
	return &Loader{config: cfg}
}

// LoadManifest expands, parses and validates a library manifest.
func (l *Loader) LoadManifest(raw []byte, vars map[string]any) (*entities.LibraryManifest, error) {
	data, err := l.config.templateEngine.Render(raw, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}

	m, err := l.config.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if l.config.validator != nil {
		if err := l.config.validator.Validate(m); err != nil {
			return nil, fmt.Errorf("manifest validation failed: %w", err)
		}
	}
	return m, nil
}
