// Package header renders the C header of a library from its manifest: the
// parameter typedefs, one envelope struct per kind, and a prototype per
// export, plus unique_ptr aliases for C++ callers.
package header

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// rendererConfig holds configuration for the Renderer.
type rendererConfig struct {
	guard  string
	strict bool // Fail on missing keys
}

func defaultRendererConfig() rendererConfig {
	return rendererConfig{
		strict: true,
	}
}

// Option configures a Renderer.
type Option func(*rendererConfig)

// WithStrict enables/disables strict mode for missing keys.
// When enabled (default), rendering fails if the template references a
// missing key.
func WithStrict(enabled bool) Option {
	return func(c *rendererConfig) {
		c.strict = enabled
	}
}

// WithGuard overrides the include guard, which defaults to the upper-cased
// library name followed by _H_.
func WithGuard(guard string) Option {
	return func(c *rendererConfig) {
		c.guard = guard
	}
}

// Renderer implements ports.HeaderRenderer using text/template.
type Renderer struct {
	tmpl   *template.Template
	config rendererConfig
}

// NewRenderer creates a Renderer.
func NewRenderer(opts ...Option) (*Renderer, error) {
	cfg := defaultRendererConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	tmpl := template.New("header")
	if cfg.strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	tmpl, err := tmpl.Parse(headerTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header template: %w", err)
	}
	return &Renderer{tmpl: tmpl, config: cfg}, nil
}

type structData struct {
	Name  string
	Alias string
	Value string
}

type functionData struct {
	Doc       []string
	Prototype string
}

type headerData struct {
	Library   string
	Version   string
	Guard     string
	Namespace string
	Structs   []structData
	Functions []functionData
}

// Render returns the header for m. Exports appear in manifest order.
func (r *Renderer) Render(m *entities.LibraryManifest) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("render header: nil manifest")
	}

	data := headerData{
		Library:   m.Name,
		Version:   m.Version,
		Guard:     r.config.guard,
		Namespace: strings.ReplaceAll(m.Namespace, ".", "::"),
	}
	if data.Guard == "" {
		data.Guard = strings.ToUpper(m.Name) + "_H_"
	}

	for _, k := range entities.Kinds() {
		s := structData{Name: k.CType(), Alias: "del_" + k.String()}
		if k.HasValue() {
			s.Value = valueField(k)
		}
		data.Structs = append(data.Structs, s)
	}

	for _, d := range m.Exports {
		proto, err := Prototype(d, m.Convention())
		if err != nil {
			return nil, err
		}
		data.Functions = append(data.Functions, functionData{Doc: docLines(d), Prototype: proto})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute header template: %w", err)
	}
	return buf.Bytes(), nil
}

// Prototype renders the C declaration of d, e.g.
//
//	return_value_int32* __cdecl parse_int(const param_string* text);
func Prototype(d entities.Declaration, convention string) (string, error) {
	params := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		ct, err := p.Type.CType()
		if err != nil {
			return "", fmt.Errorf("%s: parameter %s: %w", d.Name, p.Name, err)
		}
		params = append(params, ct+" "+p.Name)
	}
	if !d.Returns.Valid() {
		return "", fmt.Errorf("%s: invalid result kind %s", d.Name, d.Returns)
	}
	if len(params) == 0 {
		params = append(params, "void")
	}
	return fmt.Sprintf("%s* %s %s(%s);", d.Returns.CType(), convention, d.Name, strings.Join(params, ", ")), nil
}

// Prototypes renders the declaration of every export in m.
func Prototypes(m *entities.LibraryManifest) ([]string, error) {
	out := make([]string, 0, len(m.Exports))
	for _, d := range m.Exports {
		p, err := Prototype(d, m.Convention())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func valueField(k entities.Kind) string {
	switch k {
	case entities.KindString:
		return "param_string *const value"
	case entities.KindText:
		return "param_json *const value"
	case entities.KindBool:
		return "param_bool const value"
	case entities.KindInt32:
		return "param_int const value"
	case entities.KindUint32:
		return "param_uint const value"
	default:
		return "param_ptr *const value"
	}
}

// docLines returns the comment lines above a prototype: the doc string and,
// for structured-text results, the payload schema.
func docLines(d entities.Declaration) []string {
	var lines []string
	if d.Doc != "" {
		lines = append(lines, strings.Split(strings.TrimSpace(d.Doc), "\n")...)
	}
	if len(d.Schema) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, d.Schema); err == nil {
			lines = append(lines, "value schema: "+buf.String())
		}
	}
	return lines
}

var _ ports.HeaderRenderer = (*Renderer)(nil)
