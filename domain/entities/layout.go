package entities

// Layout describes the in-memory shape of an envelope struct for a given
// pointer width, following C struct layout rules. Field order is part of the
// ABI: error first, then value.
type Layout struct {
	Kind        Kind
	PtrSize     int
	ErrorOffset int
	ValueOffset int
	ValueSize   int
	Size        int
}

// LayoutOf computes the layout of the envelope for kind on a platform whose
// pointers are ptrSize bytes wide (4 or 8).
func LayoutOf(kind Kind, ptrSize int) Layout {
	l := Layout{
		Kind:        kind,
		PtrSize:     ptrSize,
		ErrorOffset: 0,
		ValueOffset: ptrSize,
		ValueSize:   valueSize(kind, ptrSize),
	}
	align := max(ptrSize, l.ValueSize)
	l.Size = alignUp(ptrSize+l.ValueSize, align)
	return l
}

// valueSize returns the width in bytes of the value field for kind.
func valueSize(kind Kind, ptrSize int) int {
	switch kind {
	case KindVoid:
		return 0
	case KindBool:
		return 1
	case KindInt32, KindUint32:
		return 4
	default:
		return ptrSize
	}
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
