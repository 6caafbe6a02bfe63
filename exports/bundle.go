package exports

// Bundle is a pre-configured set of related exports.
// Bundles allow registering multiple exports at once.
type Bundle interface {
	Exports() []Export
}

type staticBundle struct {
	exports []Export
}

func (b *staticBundle) Exports() []Export {
	return b.exports
}

// NewBundle groups exports into a Bundle.
func NewBundle(exports ...Export) Bundle {
	return &staticBundle{exports: exports}
}

type compositeBundle struct {
	bundles []Bundle
}

func (b *compositeBundle) Exports() []Export {
	var result []Export
	for _, bundle := range b.bundles {
		result = append(result, bundle.Exports()...)
	}
	return result
}

// Compose combines bundles into one.
func Compose(bundles ...Bundle) Bundle {
	return &compositeBundle{bundles: bundles}
}

// WithBundle registers all exports from a bundle.
func WithBundle(bundle Bundle) RegistryOption {
	return WithExport(bundle.Exports()...)
}
