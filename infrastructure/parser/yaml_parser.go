// Package parser reads library manifests.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// YamlManifestParser implements ManifestParser for YAML. JSON documents are
// accepted too, being valid YAML.
type YamlManifestParser struct {
	strict bool
}

// Option configures a YamlManifestParser.
type Option func(*YamlManifestParser)

// WithStrict rejects documents containing keys the manifest does not define.
// Strict parsing is the default.
func WithStrict(strict bool) Option {
	return func(p *YamlManifestParser) {
		p.strict = strict
	}
}

// NewYamlManifestParser creates a new YamlManifestParser.
func NewYamlManifestParser(opts ...Option) ports.ManifestParser {
	p := &YamlManifestParser{strict: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse unmarshals a YAML document into a LibraryManifest.
func (p *YamlManifestParser) Parse(data []byte) (*entities.LibraryManifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.strict)

	var manifest entities.LibraryManifest
	if err := dec.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse manifest: empty document")
		}
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}
