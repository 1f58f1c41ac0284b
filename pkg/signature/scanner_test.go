package signature

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHaystack = []byte{0x11, 0x22, 0x33, 0x00, 0x00, 0x11, 0x22, 0x33, 0x11, 0x00, 0x33}

func collectOffsets(s *Scanner) []int {
	var offsets []int
	for off := range s.All() {
		offsets = append(offsets, off)
	}
	return offsets
}

func TestScanner_FindAll(t *testing.T) {
	tests := []struct {
		name    string
		pattern *Pattern
		want    []int
	}{
		{"masked middle", NewPattern(Byte(0x11), Wildcard(1), Byte(0x33)), []int{0, 5, 8}},
		{"dword", NewPattern(DWord(0x00332211)), []int{0}},
		{"parsed wildcard middle byte", MustParse("11 ?? 33"), []int{0, 5, 8}},
		{"single literal byte", MustParse("11"), []int{0, 5, 8}},
		{"no match", MustParse("FF"), nil},
		{"larger than haystack", FromBytes(make([]byte, len(testHaystack)+1), nil), nil},
		{"exact haystack", FromBytes(testHaystack, nil), []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collectOffsets(tt.pattern.Scan(testHaystack)))
		})
	}
}

func TestScanner_NextReturnsWindows(t *testing.T) {
	s := MustParse("11 ?? 33").Scan(testHaystack)

	hit, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, hit.Offset)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, hit.Window)

	hit, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, 5, hit.Offset)

	hit, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, 8, hit.Offset)
	assert.Equal(t, []byte{0x11, 0x00, 0x33}, hit.Window)

	_, err = s.Next()
	assert.Equal(t, Done, err)
	_, err = s.Next()
	assert.Equal(t, Done, err, "exhausted scanner stays exhausted")
}

func TestScanner_OverlappingMatches(t *testing.T) {
	haystack := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	assert.Equal(t, []int{0, 1, 2}, collectOffsets(MustParse("AA AA").Scan(haystack)))
	assert.Equal(t, []int{0, 1, 2}, collectOffsets(MustParse("AA ??").Scan(haystack)))
}

func TestScanner_SinglePass(t *testing.T) {
	s := MustParse("11").Scan(testHaystack)

	for off := range s.All() {
		assert.Equal(t, 0, off)
		break
	}
	assert.Equal(t, 1, s.Offset())
	assert.Equal(t, []int{5, 8}, collectOffsets(s), "ranging again resumes after the break")
	assert.Empty(t, collectOffsets(s))
}

func TestScanner_ZeroSizePattern(t *testing.T) {
	p := NewPattern()

	offsets := collectOffsets(p.Scan(testHaystack))
	require.Len(t, offsets, len(testHaystack)+1)
	for i, off := range offsets {
		assert.Equal(t, i, off)
	}

	hit, err := p.Scan(nil).Next()
	require.NoError(t, err)
	assert.Equal(t, 0, hit.Offset)
	assert.Empty(t, hit.Window)
}

func TestScanner_EmptyHaystack(t *testing.T) {
	_, err := MustParse("11").Scan(nil).Next()
	assert.Equal(t, Done, err)
}

func TestScanner_WindowCannotGrow(t *testing.T) {
	hit, err := MustParse("22").Scan(testHaystack).Next()
	require.NoError(t, err)
	assert.Equal(t, 1, cap(hit.Window))
}

// bruteForce checks every offset independently.
func bruteForce(p *Pattern, haystack []byte) []int {
	var offsets []int
	for off := 0; off+p.Size() <= len(haystack); off++ {
		if p.IsMatching(haystack[off : off+p.Size()]) {
			offsets = append(offsets, off)
		}
	}
	return offsets
}

func TestScanner_AgreesWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		// A small alphabet keeps matches frequent.
		haystack := make([]byte, rng.IntN(64))
		for j := range haystack {
			haystack[j] = byte(rng.IntN(3))
		}

		sig := make([]byte, 1+rng.IntN(12))
		var wildcards []int
		for j := range sig {
			sig[j] = byte(rng.IntN(3))
			if rng.IntN(3) == 0 {
				wildcards = append(wildcards, j)
			}
		}
		p := FromBytes(sig, wildcards)

		require.Equal(t, len(sig), p.Size())
		require.True(t, p.IsMatching(sig))
		require.True(t, slices.Equal(bruteForce(p, haystack), collectOffsets(p.Scan(haystack))),
			"signature %s haystack %x", p, haystack)
	}
}
