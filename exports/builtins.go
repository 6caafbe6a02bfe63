package exports

import (
	"context"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/envelope"
)

// Builtin export names.
const (
	AllocName   = "alloc"
	DeallocName = "dealloc"
)

// IsReserved reports whether name belongs to a builtin export.
func IsReserved(name string) bool {
	return name == AllocName || name == DeallocName
}

func (r *Registry) builtins() []Export {
	alloc := HandleExport(AllocName, []entities.Param{{Name: "size", Type: entities.ParamSize}},
		func(_ context.Context, args Args) (entities.Addr, error) {
			return r.mem.Alloc(args.Size(0))
		}).WithDoc("Allocates a block of size bytes. Release it with dealloc.")

	dealloc := NewExport(entities.Declaration{
		Name:    DeallocName,
		Doc:     "Releases a block returned by this library. The success envelope is shared and must not be released.",
		Params:  []entities.Param{{Name: "block", Type: entities.ParamHandle}},
		Returns: entities.KindVoid,
	}, r.dealloc)

	return []Export{alloc, dealloc}
}

// dealloc releases any block the library handed out: envelopes, payloads,
// error strings, and blocks from alloc. Null and the shared success
// envelope are accepted and ignored.
func (r *Registry) dealloc(_ CallContext, p *envelope.Producer, args Args) entities.Addr {
	block := args.Addr(0)
	if block.IsNull() || block == r.deallocOK {
		return r.deallocOK
	}
	if err := r.mem.Free(block); err != nil {
		return p.Void(err)
	}
	return r.deallocOK
}
