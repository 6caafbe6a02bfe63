package testutil

// Forward describes a guest export that passes its i32 arguments straight
// to an imported host function and returns the host's result.
type Forward struct {
	Export string
	Module string
	Name   string
	Params int
}

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10

	i32      = 0x7f
	funcType = 0x60
	opEnd    = 0x0b
)

// allocateCode is a bump allocator over global 0: it returns the current top
// and advances it by size rounded up to 8, plus 8 so that zero-size blocks
// stay distinct. Requests above one page return null.
var allocateCode = []byte{
	0x00,
	0x20, 0x00, 0x41, 0x80, 0x80, 0x04, 0x4b, 0x04, 0x40, 0x41, 0x00, 0x0f, opEnd,
	0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x41, 0x08, 0x6a, 0x41, 0x78, 0x71, 0x24, 0x00,
	opEnd,
}

// GuestModule returns a wasm32 module exporting one page of memory as
// "memory", allocate (a bump allocator starting at 16), deallocate (a no-op)
// and one export per forward.
func GuestModule(forwards ...Forward) []byte {
	types := [][]byte{
		funcSig(1, 1), // allocate
		funcSig(1, 0), // deallocate
	}
	var imports, funcs, bodies [][]byte
	for i, f := range forwards {
		types = append(types, funcSig(f.Params, 1))
		imports = append(imports, concat(name(f.Module), name(f.Name), []byte{0x00}, uleb(2+i)))
	}

	n := len(forwards)
	funcs = append(funcs, uleb(0), uleb(1))
	bodies = append(bodies, sized(allocateCode), sized([]byte{0x00, opEnd}))
	exports := [][]byte{
		concat(name("memory"), []byte{0x02, 0x00}),
		concat(name("allocate"), []byte{0x00}, uleb(n)),
		concat(name("deallocate"), []byte{0x00}, uleb(n+1)),
	}
	for i, f := range forwards {
		funcs = append(funcs, uleb(2+i))
		code := []byte{0x00}
		for p := 0; p < f.Params; p++ {
			code = append(code, 0x20)
			code = append(code, uleb(p)...)
		}
		code = append(code, 0x10)
		code = append(code, uleb(i)...)
		code = append(code, opEnd)
		bodies = append(bodies, sized(code))
		exports = append(exports, concat(name(f.Export), []byte{0x00}, uleb(n+2+i)))
	}

	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(secType, vec(types...))...)
	if len(imports) > 0 {
		out = append(out, section(secImport, vec(imports...))...)
	}
	out = append(out, section(secFunction, vec(funcs...))...)
	out = append(out, section(secMemory, vec([]byte{0x00, 0x01}))...)
	out = append(out, section(secGlobal, vec([]byte{i32, 0x01, 0x41, 0x10, opEnd}))...)
	out = append(out, section(secExport, vec(exports...))...)
	return append(out, section(secCode, vec(bodies...))...)
}

// MemoryOnlyModule returns a module exporting one page of memory as "mem"
// and nothing else.
func MemoryOnlyModule() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(secMemory, vec([]byte{0x00, 0x01}))...)
	return append(out, section(secExport, vec(concat(name("mem"), []byte{0x02, 0x00})))...)
}

func funcSig(params, results int) []byte {
	b := []byte{funcType}
	b = append(b, uleb(params)...)
	for range params {
		b = append(b, i32)
	}
	b = append(b, uleb(results)...)
	for range results {
		b = append(b, i32)
	}
	return b
}

func uleb(n int) []byte {
	v := uint32(n) //nolint:gosec // G115: test module sizes are small
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}

func name(s string) []byte {
	return append(uleb(len(s)), s...)
}

func sized(b []byte) []byte {
	return append(uleb(len(b)), b...)
}

func vec(items ...[]byte) []byte {
	return append(uleb(len(items)), concat(items...)...)
}

func section(id byte, content []byte) []byte {
	return append([]byte{id}, sized(content)...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
