package wazero

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/envelope"
	"github.com/reglet-dev/nativeabi/exports"
	"github.com/reglet-dev/nativeabi/internal/testutil"
	"github.com/reglet-dev/nativeabi/wireformat"
)

var callerForward = testutil.Forward{Export: "call", Module: "env", Name: "upper", Params: 1}

func newRuntime(t *testing.T) (context.Context, wazero.Runtime) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return ctx, rt
}

func instantiate(t *testing.T, ctx context.Context, rt wazero.Runtime, bin []byte, name string) api.Module {
	t.Helper()
	mod, err := rt.InstantiateWithConfig(ctx, bin, wazero.NewModuleConfig().WithName(name))
	require.NoError(t, err)
	return mod
}

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := defaultAdapterConfig()
	assert.Equal(t, "nativeabi", cfg.ModuleName)

	WithModuleName("textkit")(&cfg)
	WithMemoryOptions(WithAllocExport("malloc"))(&cfg)
	assert.Equal(t, "textkit", cfg.ModuleName)
	assert.Len(t, cfg.MemoryOptions, 1)
}

func TestMemory_AllocReadWrite(t *testing.T) {
	ctx, rt := newRuntime(t)
	mem, err := NewMemory(ctx, instantiate(t, ctx, rt, testutil.GuestModule(), "guest"))
	require.NoError(t, err)
	assert.Equal(t, 4, mem.PtrSize())

	a, err := mem.Alloc(5)
	require.NoError(t, err)
	b, err := mem.Alloc(0)
	require.NoError(t, err)
	c, err := mem.Alloc(0)
	require.NoError(t, err)
	assert.Equal(t, entities.Addr(16), a)
	assert.NotEqual(t, b, c, "zero-size blocks are distinct")
	assert.False(t, b.IsNull())

	require.NoError(t, mem.Write(a, 1, []byte{1, 2, 3}))
	got, err := mem.Read(a, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, got)

	assert.NoError(t, mem.Free(a))
	assert.NoError(t, mem.Free(entities.Null))
}

func TestMemory_Errors(t *testing.T) {
	ctx, rt := newRuntime(t)
	mem, err := NewMemory(ctx, instantiate(t, ctx, rt, testutil.GuestModule(), "guest"))
	require.NoError(t, err)

	_, err = mem.Alloc(1 << 17)
	var allocErr *abierrors.AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, uint64(1<<17), allocErr.Requested)

	_, err = mem.Alloc(1 << 33)
	assert.ErrorIs(t, err, abierrors.ErrLimitExceeded)

	_, err = mem.Read(entities.Null, 0, 1)
	assert.ErrorIs(t, err, abierrors.ErrNullAddress)
	_, err = mem.Read(entities.Addr(65530), 0, 16)
	assert.ErrorIs(t, err, abierrors.ErrOutOfBounds)
	assert.ErrorIs(t, mem.Write(entities.Addr(1<<40), 0, []byte{1}), abierrors.ErrInvalidAddress)
	assert.ErrorIs(t, mem.Write(entities.Addr(65535), 0, []byte{1, 2}), abierrors.ErrOutOfBounds)
}

func TestNewMemory_MissingExports(t *testing.T) {
	ctx, rt := newRuntime(t)
	mod := instantiate(t, ctx, rt, testutil.MemoryOnlyModule(), "bare")

	_, err := NewMemory(ctx, mod)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing "allocate" export`)

	guest := instantiate(t, ctx, rt, testutil.GuestModule(), "guest")
	_, err = NewMemory(ctx, guest, WithFreeExport("free"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing "free" export`)
}

func TestMemory_EnvelopesInGuestMemory(t *testing.T) {
	ctx, rt := newRuntime(t)
	mem, err := NewMemory(ctx, instantiate(t, ctx, rt, testutil.GuestModule(), "guest"))
	require.NoError(t, err)

	p := envelope.NewProducer(mem)
	c := envelope.NewConsumer(mem)

	s, err := c.String(p.String(entities.Ok("grüße, 世界")))
	require.NoError(t, err)
	assert.Equal(t, "grüße, 世界", s)

	n, err := c.Int32(p.Int32(entities.Ok[int32](-7)))
	require.NoError(t, err)
	assert.Equal(t, int32(-7), n)

	env, err := c.Open(p.Handle(entities.Ok(entities.Addr(0xCAFE))), entities.KindHandle)
	require.NoError(t, err)
	assert.Equal(t, 8, env.Layout.Size)
	h, err := env.ValueAddr()
	require.NoError(t, err)
	assert.Equal(t, entities.Addr(0xCAFE), h)

	_, err = c.Bool(p.Bool(entities.Fail[bool]("nope")))
	var nerr *abierrors.NativeCallError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "nope", nerr.Message)
}

func upperExport() exports.Export {
	return exports.StringExport("upper", []entities.Param{{Name: "text", Type: entities.ParamString}},
		func(_ context.Context, args exports.Args) (string, error) {
			s, err := args.String(0)
			if err != nil {
				return "", err
			}
			if s == "" {
				return "", errors.New("empty input")
			}
			return strings.ToUpper(s), nil
		})
}

func TestRegisterWithRuntime_GuestCallsHost(t *testing.T) {
	ctx, rt := newRuntime(t)

	factory := func(mem ports.Memory) (*exports.Registry, error) {
		return exports.NewRegistry(mem, exports.WithExport(upperExport()))
	}
	host, err := RegisterWithRuntime(ctx, rt, factory, WithModuleName("env"))
	require.NoError(t, err)

	inst, err := NewInstance(ctx, instantiate(t, ctx, rt, testutil.GuestModule(callerForward), "caller"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, host.Close()) })

	_, ok := host.Registry(inst.Module())
	assert.False(t, ok, "registries are created on first call")

	arg, err := wireformat.EncodeString(inst.Memory(), "hello")
	require.NoError(t, err)

	addr, err := inst.Call(ctx, "call", uint64(arg))
	require.NoError(t, err)
	got, err := envelope.NewConsumer(inst.Memory()).String(addr)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)

	empty, err := wireformat.EncodeString(inst.Memory(), "")
	require.NoError(t, err)
	addr, err = inst.Call(ctx, "call", uint64(empty))
	require.NoError(t, err)
	_, err = envelope.NewConsumer(inst.Memory()).String(addr)
	var nerr *abierrors.NativeCallError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "empty input", nerr.Message)

	reg, ok := host.Registry(inst.Module())
	require.True(t, ok)
	assert.True(t, reg.Has("upper"))
}

func TestRegisterWithRuntime_FactoryError(t *testing.T) {
	ctx, rt := newRuntime(t)
	_, err := RegisterWithRuntime(ctx, rt, func(ports.Memory) (*exports.Registry, error) {
		return nil, errors.New("no registry")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registry")
}

func TestInstance_CallErrors(t *testing.T) {
	ctx, rt := newRuntime(t)
	inst, err := NewInstance(ctx, instantiate(t, ctx, rt, testutil.GuestModule(), "guest"))
	require.NoError(t, err)

	_, err = inst.Call(ctx, "missing")
	assert.ErrorContains(t, err, `no export "missing"`)

	_, err = inst.Call(ctx, "allocate")
	assert.ErrorContains(t, err, "expects 1 arguments, got 0")

	_, err = inst.Call(ctx, "deallocate", 16)
	assert.ErrorContains(t, err, "does not return an envelope")
}

func TestRegisterWithRuntime_CallsUseTheirOwnContext(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().WithCloseOnContextDone(true))
	t.Cleanup(func() { _ = rt.Close(ctx) })

	factory := func(mem ports.Memory) (*exports.Registry, error) {
		return exports.NewRegistry(mem, exports.WithExport(upperExport()))
	}
	host, err := RegisterWithRuntime(ctx, rt, factory, WithModuleName("env"))
	require.NoError(t, err)
	inst, err := NewInstance(ctx, instantiate(t, ctx, rt, testutil.GuestModule(callerForward), "caller"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, host.Close()) })

	upper := func(callCtx context.Context, s string) string {
		t.Helper()
		arg, err := wireformat.EncodeString(inst.Memory(), s)
		require.NoError(t, err)
		addr, err := inst.Call(callCtx, "call", uint64(arg))
		require.NoError(t, err)
		got, err := envelope.NewConsumer(inst.Memory()).String(addr)
		require.NoError(t, err)
		return got
	}

	first, cancel := context.WithCancel(ctx)
	assert.Equal(t, "ONE", upper(first, "one"))
	cancel()

	// The registry was built during the first call; its allocations must not
	// keep using that call's context.
	second, cancel2 := context.WithCancel(ctx)
	defer cancel2()
	assert.Equal(t, "TWO", upper(second, "two"))
	assert.Equal(t, "THREE", upper(ctx, "three"))
}

type ctxKey struct{}

func TestMemory_BindNests(t *testing.T) {
	ctx, rt := newRuntime(t)
	base := context.WithValue(ctx, ctxKey{}, "base")
	mem, err := NewMemory(base, instantiate(t, ctx, rt, testutil.GuestModule(), "guest"))
	require.NoError(t, err)
	assert.Equal(t, "base", mem.context().Value(ctxKey{}))

	restoreOuter := mem.bind(context.WithValue(ctx, ctxKey{}, "outer"))
	restoreInner := mem.bind(context.WithValue(ctx, ctxKey{}, "inner"))
	assert.Equal(t, "inner", mem.context().Value(ctxKey{}))

	a, err := mem.Alloc(8)
	require.NoError(t, err)
	require.NoError(t, mem.Free(a))

	restoreInner()
	assert.Equal(t, "outer", mem.context().Value(ctxKey{}))
	restoreOuter()
	assert.Equal(t, "base", mem.context().Value(ctxKey{}))
}
