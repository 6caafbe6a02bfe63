package exports

import (
	"context"

	"github.com/reglet-dev/nativeabi/domain/entities"
)

// CallContext wraps a context.Context with per-call helpers for middleware
// and export bodies.
type CallContext interface {
	context.Context

	// FunctionName returns the name of the export being invoked.
	FunctionName() string

	// Declaration returns the declaration of the export being invoked.
	Declaration() entities.Declaration

	// SetValue stores a call-scoped value. Unlike context.WithValue,
	// this mutates the existing CallContext.
	SetValue(key, value any)

	// GetValue retrieves a call-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type callContext struct {
	context.Context
	values map[any]any
	decl   entities.Declaration
}

// NewCallContext creates a CallContext for decl wrapping ctx.
func NewCallContext(ctx context.Context, decl entities.Declaration) CallContext {
	return &callContext{
		Context: ctx,
		decl:    decl,
		values:  make(map[any]any),
	}
}

func (c *callContext) FunctionName() string {
	return c.decl.Name
}

func (c *callContext) Declaration() entities.Declaration {
	return c.decl
}

func (c *callContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *callContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// CallContextFrom returns ctx when it already is a CallContext, and wraps
// it otherwise.
func CallContextFrom(ctx context.Context, decl entities.Declaration) CallContext {
	if cc, ok := ctx.(CallContext); ok {
		return cc
	}
	return NewCallContext(ctx, decl)
}
