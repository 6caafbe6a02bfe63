package wireformat

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/infrastructure/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	b, err := Encode("hi")
	require.NoError(t, err)

	want := binary.NativeEndian.AppendUint16(nil, 'h')
	want = binary.NativeEndian.AppendUint16(want, 'i')
	want = append(want, 0, 0)
	assert.Equal(t, want, b)
}

func TestEncode_Empty(t *testing.T) {
	b, err := Encode("")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, b)
}

func TestEncode_EmbeddedNUL(t *testing.T) {
	_, err := Encode("a\x00b")
	assert.ErrorIs(t, err, abierrors.ErrEmbeddedNUL)
}

func TestEncode_SurrogatePair(t *testing.T) {
	b, err := Encode("😀")
	require.NoError(t, err)
	assert.Len(t, b, 3*UnitSize)
	assert.Equal(t, 2, UnitLength("😀"))
}

func TestDecode_StopsAtTerminator(t *testing.T) {
	b, err := Encode("abc")
	require.NoError(t, err)
	b = append(b, binary.NativeEndian.AppendUint16(nil, 'z')...)

	s, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestStringRoundTrip(t *testing.T) {
	mem := arena.New()
	inputs := []string{
		"",
		"hello",
		"héllo wörld",
		"日本語テキスト",
		"emoji 😀 and 🎉",
		strings.Repeat("x", 1000),
	}
	for _, in := range inputs {
		addr, err := EncodeString(mem, in)
		require.NoError(t, err)

		size, err := mem.Size(addr)
		require.NoError(t, err)
		assert.Equal(t, uint64((UnitLength(in)+1)*UnitSize), size)

		out, err := DecodeString(mem, addr)
		require.NoError(t, err)
		assert.Equal(t, in, out)

		require.NoError(t, mem.Free(addr))
	}
	assert.Zero(t, mem.Stats().LiveBlocks)
}

func TestEncodeString_AllocationFailure(t *testing.T) {
	mem := arena.New(arena.WithMaxTotalBytes(4))

	_, err := EncodeString(mem, "too long")
	var allocErr *abierrors.AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, uint64(18), allocErr.Requested)
}

func TestDecodeString_Null(t *testing.T) {
	_, err := DecodeString(arena.New(), entities.Null)
	assert.ErrorIs(t, err, abierrors.ErrNullAddress)
}

func TestDecodeString_Unterminated(t *testing.T) {
	mem := arena.New()
	addr, err := mem.Alloc(6)
	require.NoError(t, err)
	require.NoError(t, mem.Write(addr, 0, []byte{'a', 'a', 'b', 'b', 'c', 'c'}))

	_, err = DecodeString(mem, addr)
	assert.ErrorIs(t, err, abierrors.ErrOutOfBounds)
}

func TestDecodeStringLimit(t *testing.T) {
	mem := arena.New()
	addr, err := EncodeString(mem, strings.Repeat("a", 200))
	require.NoError(t, err)

	_, err = DecodeStringLimit(mem, addr, 100)
	assert.ErrorIs(t, err, abierrors.ErrLimitExceeded)

	s, err := DecodeStringLimit(mem, addr, 200)
	require.NoError(t, err)
	assert.Len(t, s, 200)
}

// scanningMemory reads strings only through ReadString16, like a memory
// holding caller blocks of unknown size.
type scanningMemory struct {
	*arena.Arena
	scans int
}

func (m *scanningMemory) Read(entities.Addr, uint32, uint32) ([]byte, error) {
	return nil, errors.New("chunked read of a block of unknown size")
}

func (m *scanningMemory) ReadString16(addr entities.Addr, maxUnits int) ([]byte, bool, error) {
	m.scans++
	var out []byte
	for i := 0; i <= maxUnits; i++ {
		unit, err := m.Arena.Read(addr, uint32(2*i), 2) //nolint:gosec // G115: small test strings
		if err != nil {
			return nil, false, err
		}
		if unit[0] == 0 && unit[1] == 0 {
			return out, true, nil
		}
		out = append(out, unit...)
	}
	return nil, false, nil
}

func TestDecodeString_UsesStringReader(t *testing.T) {
	mem := &scanningMemory{Arena: arena.New()}
	addr, err := EncodeString(mem, "héllo")
	require.NoError(t, err)

	s, err := DecodeString(mem, addr)
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)
	assert.Equal(t, 1, mem.scans)

	long, err := EncodeString(mem, strings.Repeat("a", 20))
	require.NoError(t, err)
	_, err = DecodeStringLimit(mem, long, 10)
	assert.ErrorIs(t, err, abierrors.ErrLimitExceeded)
}

func TestScalars(t *testing.T) {
	mem := arena.New()
	addr, err := mem.Alloc(16)
	require.NoError(t, err)

	for _, v := range []int32{math.MinInt32, -1, 0, 1, math.MaxInt32} {
		require.NoError(t, PutInt32(mem, addr, 4, v))
		got, err := ReadInt32(mem, addr, 4)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	for _, v := range []uint32{0, 1, math.MaxUint32} {
		require.NoError(t, PutUint32(mem, addr, 8, v))
		got, err := ReadUint32(mem, addr, 8)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	for _, v := range []bool{true, false} {
		require.NoError(t, PutBool(mem, addr, 0, v))
		got, err := ReadBool(mem, addr, 0)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestReadBool_NonzeroIsTrue(t *testing.T) {
	mem := arena.New()
	addr, err := mem.Alloc(1)
	require.NoError(t, err)
	require.NoError(t, mem.Write(addr, 0, []byte{0x7f}))

	v, err := ReadBool(mem, addr, 0)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestAddr_PointerWidths(t *testing.T) {
	mem64 := arena.New()
	addr, err := mem64.Alloc(8)
	require.NoError(t, err)
	require.NoError(t, PutAddr(mem64, addr, 0, entities.Addr(math.MaxUint64)))
	got, err := ReadAddr(mem64, addr, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.Addr(math.MaxUint64), got)

	mem32 := arena.New(arena.WithPtrSize(4))
	addr, err = mem32.Alloc(4)
	require.NoError(t, err)
	require.NoError(t, PutAddr(mem32, addr, 0, 0xdeadbeef))
	got, err = ReadAddr(mem32, addr, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.Addr(0xdeadbeef), got)

	assert.Error(t, PutAddr(mem32, addr, 0, entities.Addr(1)<<32))
}

func TestScalar_OutOfBounds(t *testing.T) {
	mem := arena.New()
	addr, err := mem.Alloc(2)
	require.NoError(t, err)

	err = PutUint32(mem, addr, 0, 1)
	var wfErr *abierrors.WireFormatError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "uint32", wfErr.Type)
	assert.ErrorIs(t, err, abierrors.ErrOutOfBounds)
}

func TestView(t *testing.T) {
	v := Borrow("héllo")
	assert.Equal(t, "héllo", v.String())
	assert.Equal(t, 5, v.Len())

	mem := arena.New()
	addr, err := v.Copy(mem)
	require.NoError(t, err)

	borrowed, err := BorrowAt(mem, addr)
	require.NoError(t, err)
	assert.Equal(t, "héllo", borrowed.String())

	// Borrowing leaves ownership with the lender.
	_, err = mem.Size(addr)
	require.NoError(t, err)
	require.NoError(t, mem.Free(addr))

	empty, err := BorrowAt(mem, entities.Null)
	require.NoError(t, err)
	assert.Empty(t, empty.String())
}
