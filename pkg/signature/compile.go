package signature

import (
	"encoding/binary"
	"fmt"
)

// maxChunk is the widest literal comparison a single chunk may hold.
const maxChunk = 8

// Compile turns raw signature bytes and the offsets of its wildcard bytes
// into an ordered atom sequence that exactly tiles data.
//
// Wildcard runs become a single Wildcard atom regardless of length. Literal
// runs are cut into chunks of at most 8 bytes and each chunk is split
// greedily into 8, 4, 2 and 1 byte comparisons. Multi-byte values are
// always read little-endian so a compiled pattern behaves the same on every
// host. Offsets outside data are ignored.
func Compile(data []byte, wildcards []int) []Atom {
	masked := make([]bool, len(data))
	for _, off := range wildcards {
		if off >= 0 && off < len(data) {
			masked[off] = true
		}
	}

	var atoms []Atom
	for start := 0; start < len(data); {
		end := start + 1
		for end < len(data) && masked[end] == masked[start] {
			end++
		}

		if masked[start] {
			atoms = append(atoms, Wildcard(end-start))
		} else {
			for c := start; c < end; c += maxChunk {
				atoms = appendChunk(atoms, data[c:min(c+maxChunk, end)])
			}
		}
		start = end
	}
	return atoms
}

// appendChunk appends the fixed atoms for one literal chunk of 1..8 bytes.
// Any other length means the chunking in Compile is broken.
func appendChunk(atoms []Atom, chunk []byte) []Atom {
	if len(chunk) < 1 || len(chunk) > maxChunk {
		panic(fmt.Sprintf("signature: invalid chunk length %d", len(chunk)))
	}

	for len(chunk) > 0 {
		switch {
		case len(chunk) >= 8:
			atoms = append(atoms, QWord(binary.LittleEndian.Uint64(chunk)))
			chunk = chunk[8:]
		case len(chunk) >= 4:
			atoms = append(atoms, DWord(binary.LittleEndian.Uint32(chunk)))
			chunk = chunk[4:]
		case len(chunk) >= 2:
			atoms = append(atoms, Word(binary.LittleEndian.Uint16(chunk)))
			chunk = chunk[2:]
		default:
			atoms = append(atoms, Byte(chunk[0]))
			chunk = chunk[1:]
		}
	}
	return atoms
}
