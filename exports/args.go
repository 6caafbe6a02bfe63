package exports

import (
	"encoding/json"
	"fmt"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/wireformat"
)

// Args are the raw argument words of one call. String and text arguments
// are borrowed: the caller keeps ownership and the export must not release
// them.
type Args struct {
	mem    ports.Memory
	words  []uint64
	params []entities.Param
}

// NewArgs wraps raw argument words.
func NewArgs(mem ports.Memory, params []entities.Param, words ...uint64) Args {
	return Args{mem: mem, params: params, words: words}
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a.words)
}

// Memory returns the Memory the arguments live in.
func (a Args) Memory() ports.Memory {
	return a.mem
}

// Word returns argument i as a raw word. Out of range yields zero.
func (a Args) Word(i int) uint64 {
	if i < 0 || i >= len(a.words) {
		return 0
	}
	return a.words[i]
}

// String decodes a borrowed WireString argument. A null argument is "".
func (a Args) String(i int) (string, error) {
	v, err := a.View(i)
	return v.String(), err
}

// View decodes a borrowed WireString argument as a View.
func (a Args) View(i int) (wireformat.View, error) {
	v, err := wireformat.BorrowAt(a.mem, a.Addr(i))
	if err != nil {
		return v, fmt.Errorf("argument %s: %w", a.name(i), err)
	}
	return v, nil
}

// Text decodes a borrowed structured-text argument into v.
func (a Args) Text(i int, v any) error {
	s, err := a.String(i)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return &abierrors.DecodeError{Caller: a.name(i), Type: fmt.Sprintf("%T", v), Text: s, Err: err}
	}
	return nil
}

// Bool returns argument i as a bool; any nonzero word is true.
func (a Args) Bool(i int) bool {
	return a.Word(i)&0xff != 0
}

// Int32 returns argument i as a signed 32-bit integer.
func (a Args) Int32(i int) int32 {
	return int32(uint32(a.Word(i))) //nolint:gosec // G115: low 32 bits carry the value
}

// Uint32 returns argument i as an unsigned 32-bit integer.
func (a Args) Uint32(i int) uint32 {
	return uint32(a.Word(i)) //nolint:gosec // G115: low 32 bits carry the value
}

// Addr returns argument i as an address.
func (a Args) Addr(i int) entities.Addr {
	return entities.Addr(a.Word(i))
}

// Size returns argument i as a size_t.
func (a Args) Size(i int) uint64 {
	return a.Word(i)
}

func (a Args) name(i int) string {
	if i >= 0 && i < len(a.params) {
		return a.params[i].Name
	}
	return fmt.Sprintf("#%d", i)
}
