package marshal

import (
	"math"
	"testing"

	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/internal/testutil"
	"github.com/reglet-dev/nativeabi/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy(t *testing.T) {
	mem := testutil.NewTrackingMemory()
	addr, err := Copy(mem, "copied")
	require.NoError(t, err)

	s, err := wireformat.DecodeString(mem, addr)
	require.NoError(t, err)
	assert.Equal(t, "copied", s)

	require.NoError(t, mem.Free(addr))
	testutil.AssertBalanced(t, mem)
}

func TestCopyWithFree_ReleasesOnce(t *testing.T) {
	mem := testutil.NewTrackingMemory()

	func() {
		o, err := CopyWithFree(mem, "scoped")
		require.NoError(t, err)
		defer func() { _ = o.Release() }()

		assert.False(t, o.Addr().IsNull())
		require.NoError(t, o.Release())
		assert.True(t, o.Addr().IsNull())
	}()

	testutil.AssertBalanced(t, mem)
}

func TestOwned_Take(t *testing.T) {
	mem := testutil.NewTrackingMemory()
	o, err := CopyWithFree(mem, "moved")
	require.NoError(t, err)

	addr := o.Take()
	assert.False(t, addr.IsNull())
	assert.True(t, o.Take().IsNull(), "second Take yields nothing")
	require.NoError(t, o.Release(), "Release after Take is a no-op")

	_, err = mem.Size(addr)
	require.NoError(t, err, "block survives the wrapper")
	require.NoError(t, mem.Free(addr))
	testutil.AssertBalanced(t, mem)
}

func TestOwned_NilIsSafe(t *testing.T) {
	var o *Owned
	assert.NoError(t, o.Release())
	assert.True(t, o.Addr().IsNull())
}

func TestCopyWithFree_AllocationFailure(t *testing.T) {
	mem := testutil.FailNth(testutil.NewTrackingMemory(), 1)
	_, err := CopyWithFree(mem, "x")

	var allocErr *abierrors.AllocationError
	assert.ErrorAs(t, err, &allocErr)
}

func TestNoCopy(t *testing.T) {
	mem := testutil.NewTrackingMemory()
	v := NoCopy("borrowed")

	assert.Equal(t, "borrowed", v.String())
	assert.Empty(t, mem.Live(), "borrowing allocates nothing")
}

type vec3 struct {
	X, Y, Z float32
	Tag     uint8
	_       [3]byte
}

func TestCreateLoad(t *testing.T) {
	mem := testutil.NewTrackingMemory()

	addr, err := Create(mem, vec3{X: 1.5, Y: -2, Z: math.MaxFloat32, Tag: 9})
	require.NoError(t, err)
	size, err := mem.Size(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), size)

	got, err := Load[vec3](mem, addr)
	require.NoError(t, err)
	assert.Equal(t, vec3{X: 1.5, Y: -2, Z: math.MaxFloat32, Tag: 9}, got)

	n, err := Create(mem, int64(math.MinInt64))
	require.NoError(t, err)
	back, err := Load[int64](mem, n)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), back)

	require.NoError(t, mem.Free(addr))
	require.NoError(t, mem.Free(n))
	testutil.AssertBalanced(t, mem)
}

func TestCreate_NotFixedSize(t *testing.T) {
	mem := testutil.NewTrackingMemory()
	_, err := Create(mem, "string")
	assert.ErrorContains(t, err, "not a fixed-size value")

	_, err = Load[map[string]int](mem, 1)
	assert.Error(t, err)
}
