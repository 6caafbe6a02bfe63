package ports

import "github.com/reglet-dev/nativeabi/domain/entities"

// HeaderRenderer renders the C declarations of a library.
type HeaderRenderer interface {
	// Render returns the header text for the manifest.
	Render(manifest *entities.LibraryManifest) ([]byte, error)
}

// TemplateEngine expands placeholders in a raw manifest before it is parsed.
type TemplateEngine interface {
	// Render returns raw with its placeholders resolved against vars.
	Render(raw []byte, vars map[string]any) ([]byte, error)
}
