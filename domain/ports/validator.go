package ports

import "github.com/reglet-dev/nativeabi/domain/entities"

// ManifestValidator checks a LibraryManifest before code is generated from it.
type ManifestValidator interface {
	Validate(manifest *entities.LibraryManifest) error
}
