package handle

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_InsertGetRemove(t *testing.T) {
	tbl := NewTable[string]()

	h, err := tbl.Insert("first")
	require.NoError(t, err)
	assert.False(t, h.IsNull())

	v, ok := tbl.Get(h)
	require.True(t, ok)
	assert.Equal(t, "first", v)
	assert.Equal(t, 1, tbl.Len())

	v, ok = tbl.Remove(h)
	require.True(t, ok)
	assert.Equal(t, "first", v)
	assert.Zero(t, tbl.Len())

	_, ok = tbl.Remove(h)
	assert.False(t, ok, "second removal is rejected")
}

func TestTable_StaleHandle(t *testing.T) {
	tbl := NewTable[int]()
	old, _ := tbl.Insert(1)
	tbl.Remove(old)
	fresh, _ := tbl.Insert(2)

	assert.NotEqual(t, old, fresh)
	_, ok := tbl.Get(old)
	assert.False(t, ok)

	_, err := tbl.MustGet(old)
	assert.ErrorIs(t, err, abierrors.ErrInvalidAddress)

	v, err := tbl.MustGet(fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestTable_UnknownHandles(t *testing.T) {
	tbl := NewTable[int]()
	_, ok := tbl.Get(entities.Null)
	assert.False(t, ok)
	_, ok = tbl.Get(entities.PackSlot(42, 0))
	assert.False(t, ok)
}

func TestTable_PtrSize4(t *testing.T) {
	tbl := NewTable[int](WithPtrSize(4))
	for i := 0; i < 10; i++ {
		h, err := tbl.Insert(i)
		require.NoError(t, err)
		assert.LessOrEqual(t, uint64(h), uint64(math.MaxUint32))
		_, ok := tbl.Remove(h)
		require.True(t, ok)
	}
}

type closer struct {
	closed *int
	err    error
}

func (c closer) Close() error {
	*c.closed++
	return c.err
}

func TestTable_Close(t *testing.T) {
	var closed int
	boom := errors.New("boom")
	tbl := NewTable[closer]()
	_, _ = tbl.Insert(closer{closed: &closed})
	_, _ = tbl.Insert(closer{closed: &closed, err: boom})
	h, _ := tbl.Insert(closer{closed: &closed})
	tbl.Remove(h)

	err := tbl.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, closed)
	assert.NoError(t, tbl.Close())

	_, err = tbl.Insert(closer{closed: &closed})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTable_Concurrent(t *testing.T) {
	tbl := NewTable[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h, err := tbl.Insert(g*1000 + i)
				if !assert.NoError(t, err) {
					return
				}
				v, ok := tbl.Get(h)
				assert.True(t, ok)
				assert.Equal(t, g*1000+i, v)
				_, ok = tbl.Remove(h)
				assert.True(t, ok)
			}
		}(g)
	}
	wg.Wait()
	assert.Zero(t, tbl.Len())
}
