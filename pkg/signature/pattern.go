// Package signature compiles byte signatures with wildcard positions into
// word-sized comparisons and scans buffers for them.
//
// A signature is written as space separated tokens, two hex digits per
// known byte and "??" per unknown byte:
//
//	p, err := signature.Parse("48 8B 05 ?? ?? ?? ?? 48 85 C0")
//	if err != nil {
//	    return err
//	}
//	for off := range p.Scan(image).All() {
//	    fmt.Printf("match at %#x\n", off)
//	}
//
// A Pattern is immutable and may be shared between goroutines. A Scanner
// is a single-pass cursor owned by one goroutine.
package signature

import (
	"fmt"
	"slices"
)

// Pattern is a compiled signature.
type Pattern struct {
	atoms []Atom
	size  int
}

// NewPattern builds a pattern directly from atoms.
func NewPattern(atoms ...Atom) *Pattern {
	p := &Pattern{atoms: slices.Clone(atoms)}
	for _, a := range p.atoms {
		p.size += a.Width()
	}
	return p
}

// FromBytes compiles raw bytes with the given wildcard offsets.
func FromBytes(data []byte, wildcards []int) *Pattern {
	return NewPattern(Compile(data, wildcards)...)
}

// Parse decodes and compiles signature text.
func Parse(text string) (*Pattern, error) {
	data, wildcards, err := Decode(text)
	if err != nil {
		return nil, err
	}
	return FromBytes(data, wildcards), nil
}

// MustParse is like Parse but panics on malformed text. Intended for
// signatures known at compile time.
func MustParse(text string) *Pattern {
	p, err := Parse(text)
	if err != nil {
		panic(fmt.Sprintf("signature: MustParse(%q): %v", text, err))
	}
	return p
}

// Size returns the number of bytes a window must have to be tested.
func (p *Pattern) Size() int {
	return p.size
}

// Atoms returns a copy of the compiled atom sequence.
func (p *Pattern) Atoms() []Atom {
	return slices.Clone(p.atoms)
}

// Equal reports whether both patterns hold the same atom sequence.
func (p *Pattern) Equal(other *Pattern) bool {
	if p == nil || other == nil {
		return p == other
	}
	return slices.Equal(p.atoms, other.atoms)
}

// IsMatching reports whether window matches the pattern. Atoms are checked
// left to right and the first fixed mismatch ends the test.
//
// len(window) must equal Size(); anything else is a caller bug and panics.
func (p *Pattern) IsMatching(window []byte) bool {
	if len(window) != p.size {
		panic(fmt.Sprintf("signature: window length %d does not match pattern size %d", len(window), p.size))
	}

	for _, a := range p.atoms {
		if a.kind == KindFixed && !a.matches(window) {
			return false
		}
		window = window[a.width:]
	}
	return true
}

// Scan returns a Scanner over haystack. The haystack is borrowed, not
// copied, and must not be modified while the scanner is in use.
func (p *Pattern) Scan(haystack []byte) *Scanner {
	return NewScanner(p, haystack)
}

// Bytes reconstructs the signature bytes and wildcard offsets. Wildcard
// positions hold Placeholder.
func (p *Pattern) Bytes() ([]byte, []int) {
	data := make([]byte, 0, p.size)
	var wildcards []int
	for _, a := range p.atoms {
		if a.kind == KindWildcard {
			for i := 0; i < a.width; i++ {
				wildcards = append(wildcards, len(data)+i)
			}
		}
		data = a.appendBytes(data)
	}
	return data, wildcards
}

// String renders the pattern in signature notation.
func (p *Pattern) String() string {
	return Encode(p.Bytes())
}

// Anchor returns the longest run of literal bytes and its offset within the
// signature. The first run wins ties. A pattern made only of wildcards, or
// an empty one, returns (0, nil).
func (p *Pattern) Anchor() (int, []byte) {
	var (
		bestOff, bestLen int
		runOff, runLen   int
		off              int
	)
	for _, a := range p.atoms {
		if a.kind == KindWildcard {
			runLen = 0
			off += a.width
			continue
		}
		if runLen == 0 {
			runOff = off
		}
		runLen += a.width
		off += a.width
		if runLen > bestLen {
			bestOff, bestLen = runOff, runLen
		}
	}
	if bestLen == 0 {
		return 0, nil
	}

	data, _ := p.Bytes()
	return bestOff, data[bestOff : bestOff+bestLen]
}
