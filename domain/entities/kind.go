package entities

import (
	"fmt"
	"strings"
)

// Kind identifies the payload carried by an envelope.
type Kind uint8

const (
	// KindVoid carries only an error.
	KindVoid Kind = iota
	// KindString carries an owned WireString.
	KindString
	// KindText carries an owned WireString holding structured text (JSON).
	KindText
	// KindBool carries a single byte inline.
	KindBool
	// KindInt32 carries a signed 32-bit integer inline.
	KindInt32
	// KindUint32 carries an unsigned 32-bit integer inline.
	KindUint32
	// KindHandle carries an opaque address.
	KindHandle
)

var kindNames = [...]string{
	KindVoid:   "void",
	KindString: "string",
	KindText:   "json",
	KindBool:   "bool",
	KindInt32:  "int32",
	KindUint32: "uint32",
	KindHandle: "ptr",
}

// Kinds lists every supported kind in ABI order.
func Kinds() []Kind {
	return []Kind{KindVoid, KindString, KindText, KindBool, KindInt32, KindUint32, KindHandle}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// CType returns the C struct name of the envelope for this kind.
func (k Kind) CType() string {
	return "return_value_" + k.String()
}

// HasValue reports whether the envelope has a value field.
func (k Kind) HasValue() bool {
	return k.Valid() && k != KindVoid
}

// OwnsPayload reports whether a successful envelope's value is a separately
// owned block that the receiver must release.
func (k Kind) OwnsPayload() bool {
	return k == KindString || k == KindText
}

// ParseKind parses a kind name. "text" and "handle" are accepted as aliases
// of "json" and "ptr".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "void":
		return KindVoid, nil
	case "string":
		return KindString, nil
	case "json", "text":
		return KindText, nil
	case "bool":
		return KindBool, nil
	case "int32", "int":
		return KindInt32, nil
	case "uint32", "uint":
		return KindUint32, nil
	case "ptr", "handle":
		return KindHandle, nil
	default:
		return 0, fmt.Errorf("unknown envelope kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid envelope kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
