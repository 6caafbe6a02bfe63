package ports

import "github.com/reglet-dev/nativeabi/domain/entities"

// ManifestParser parses raw bytes into a LibraryManifest.
type ManifestParser interface {
	// Parse unmarshals the document into a LibraryManifest.
	Parse(data []byte) (*entities.LibraryManifest, error)
}
