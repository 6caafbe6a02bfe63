package exports

import (
	"context"
	"reflect"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/envelope"
)

// Handler is the raw form of an export. It must return exactly one envelope
// built by p.
type Handler func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr

// Func is an export body returning a value or an error.
type Func[T any] func(ctx context.Context, args Args) (T, error)

// Export is a declared function and its handler.
type Export struct {
	Handler     Handler
	ResultType  reflect.Type // Go type of a structured-text result, nil otherwise
	Declaration entities.Declaration
}

// NewExport pairs a declaration with a raw handler.
func NewExport(decl entities.Declaration, h Handler) Export {
	return Export{Declaration: decl, Handler: h}
}

func declare(name string, params []entities.Param, kind entities.Kind) entities.Declaration {
	return entities.Declaration{Name: name, Params: params, Returns: kind}
}

// VoidExport declares an export returning return_value_void.
func VoidExport(name string, params []entities.Param, fn func(ctx context.Context, args Args) error) Export {
	return NewExport(declare(name, params, entities.KindVoid), func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
		return p.Void(fn(ctx, args))
	})
}

// StringExport declares an export returning return_value_string.
func StringExport(name string, params []entities.Param, fn Func[string]) Export {
	return NewExport(declare(name, params, entities.KindString), func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
		v, err := fn(ctx, args)
		if err != nil {
			return p.FailErr(entities.KindString, err)
		}
		return p.String(entities.Ok(v))
	})
}

// TextExport declares an export returning return_value_json. The value is
// marshaled to JSON.
func TextExport[T any](name string, params []entities.Param, fn Func[T]) Export {
	e := NewExport(declare(name, params, entities.KindText), func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
		v, err := fn(ctx, args)
		return p.TextValue(v, err)
	})
	e.ResultType = reflect.TypeFor[T]()
	return e
}

// BoolExport declares an export returning return_value_bool.
func BoolExport(name string, params []entities.Param, fn Func[bool]) Export {
	return NewExport(declare(name, params, entities.KindBool), func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
		v, err := fn(ctx, args)
		if err != nil {
			return p.FailErr(entities.KindBool, err)
		}
		return p.Bool(entities.Ok(v))
	})
}

// Int32Export declares an export returning return_value_int32.
func Int32Export(name string, params []entities.Param, fn Func[int32]) Export {
	return NewExport(declare(name, params, entities.KindInt32), func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
		v, err := fn(ctx, args)
		if err != nil {
			return p.FailErr(entities.KindInt32, err)
		}
		return p.Int32(entities.Ok(v))
	})
}

// Uint32Export declares an export returning return_value_uint32.
func Uint32Export(name string, params []entities.Param, fn Func[uint32]) Export {
	return NewExport(declare(name, params, entities.KindUint32), func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
		v, err := fn(ctx, args)
		if err != nil {
			return p.FailErr(entities.KindUint32, err)
		}
		return p.Uint32(entities.Ok(v))
	})
}

// HandleExport declares an export returning return_value_ptr. The returned
// address passes to the caller.
func HandleExport(name string, params []entities.Param, fn Func[entities.Addr]) Export {
	return NewExport(declare(name, params, entities.KindHandle), func(ctx CallContext, p *envelope.Producer, args Args) entities.Addr {
		v, err := fn(ctx, args)
		if err != nil {
			return p.FailErr(entities.KindHandle, err)
		}
		return p.Handle(entities.Ok(v))
	})
}

// WithDoc returns e with a documentation line attached to its declaration.
func (e Export) WithDoc(doc string) Export {
	e.Declaration.Doc = doc
	return e
}
