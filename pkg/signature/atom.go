package signature

import (
	"encoding/binary"
	"fmt"
)

// Kind distinguishes the two atom variants.
type Kind uint8

const (
	// KindFixed compares 1, 2, 4 or 8 known bytes as one unsigned integer.
	KindFixed Kind = iota
	// KindWildcard skips a run of don't-care bytes.
	KindWildcard
)

// String returns "fixed" or "wildcard".
func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindWildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Atom is one compiled unit of a Pattern.
//
// A fixed atom holds a little-endian value decoded from Width() raw bytes.
// A wildcard atom holds only its length. Atoms are plain values and compare
// with ==.
type Atom struct {
	kind  Kind
	width int
	value uint64
}

// Byte returns a 1-byte fixed atom.
func Byte(v uint8) Atom {
	return Atom{kind: KindFixed, width: 1, value: uint64(v)}
}

// Word returns a 2-byte fixed atom.
func Word(v uint16) Atom {
	return Atom{kind: KindFixed, width: 2, value: uint64(v)}
}

// DWord returns a 4-byte fixed atom.
func DWord(v uint32) Atom {
	return Atom{kind: KindFixed, width: 4, value: uint64(v)}
}

// QWord returns an 8-byte fixed atom.
func QWord(v uint64) Atom {
	return Atom{kind: KindFixed, width: 8, value: v}
}

// Wildcard returns an atom that skips n bytes. n must be at least 1.
func Wildcard(n int) Atom {
	if n < 1 {
		panic(fmt.Sprintf("signature: wildcard length %d must be positive", n))
	}
	return Atom{kind: KindWildcard, width: n}
}

// Kind returns the atom variant.
func (a Atom) Kind() Kind { return a.kind }

// Width returns the number of signature bytes the atom covers.
func (a Atom) Width() int { return a.width }

// Value returns the comparison value of a fixed atom and 0 for a wildcard.
func (a Atom) Value() uint64 { return a.value }

// String renders the atom for debugging, e.g. "u16(0x2211)" or "skip(3)".
func (a Atom) String() string {
	if a.kind == KindWildcard {
		return fmt.Sprintf("skip(%d)", a.width)
	}
	return fmt.Sprintf("u%d(%#x)", a.width*8, a.value)
}

// matches reports whether the first Width() bytes of b equal the atom.
// Callers guarantee len(b) >= Width().
func (a Atom) matches(b []byte) bool {
	switch a.width {
	case 1:
		return uint64(b[0]) == a.value
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)) == a.value
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)) == a.value
	case 8:
		return binary.LittleEndian.Uint64(b) == a.value
	default:
		panic(fmt.Sprintf("signature: fixed atom with width %d", a.width))
	}
}

// appendBytes writes the raw bytes of a fixed atom, or width placeholder
// bytes for a wildcard, to dst.
func (a Atom) appendBytes(dst []byte) []byte {
	if a.kind == KindWildcard {
		for i := 0; i < a.width; i++ {
			dst = append(dst, Placeholder)
		}
		return dst
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], a.value)
	return append(dst, buf[:a.width]...)
}
