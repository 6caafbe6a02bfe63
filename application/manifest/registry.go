package manifest

import (
	"fmt"

	"github.com/reglet-dev/nativeabi/application/schema"
	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/exports"
)

// Info is the library metadata that a registry does not know about.
type Info struct {
	Name              string
	Namespace         string
	Version           string
	CallingConvention string
}

// FromRegistry describes every export of reg, builtins included, as a
// manifest. Structured-text exports with a known Go result type get a JSON
// schema of that type.
func FromRegistry(info Info, reg *exports.Registry) (*entities.LibraryManifest, error) {
	m := &entities.LibraryManifest{
		Name:              info.Name,
		Namespace:         info.Namespace,
		Version:           info.Version,
		CallingConvention: info.CallingConvention,
	}
	for _, e := range reg.Exports() {
		decl := e.Declaration
		if decl.Returns == entities.KindText && e.ResultType != nil && len(decl.Schema) == 0 {
			s, err := schema.ForType(e.ResultType)
			if err != nil {
				return nil, fmt.Errorf("schema for %s: %w", decl.Name, err)
			}
			decl.Schema = s
		}
		m.Exports = append(m.Exports, decl)
	}
	return m, nil
}
