package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MatchesRawConstructor(t *testing.T) {
	tests := []struct {
		text string
		want *Pattern
	}{
		{"11", NewPattern(Byte(0x11))},
		{"11 22", NewPattern(Word(0x2211))},
		{"11 22 33", NewPattern(Word(0x2211), Byte(0x33))},
		{"11 22 33 44", NewPattern(DWord(0x44332211))},
		{"11 ?? 22", NewPattern(Byte(0x11), Wildcard(1), Byte(0x22))},
		{"11 ?? ?? 22", NewPattern(Byte(0x11), Wildcard(2), Byte(0x22))},
		{"11 ?? ?? 22 ?? ?? 33", NewPattern(Byte(0x11), Wildcard(2), Byte(0x22), Wildcard(2), Byte(0x33))},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			p, err := Parse(tt.text)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(p), "want %v, got %v", tt.want.Atoms(), p.Atoms())
		})
	}
}

func TestParse_Error(t *testing.T) {
	p, err := Parse("11 XY")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrInvalidHexDigit)

	assert.Panics(t, func() { MustParse("11 2") })
}

func TestPattern_Size(t *testing.T) {
	assert.Equal(t, 0, NewPattern().Size())
	assert.Equal(t, 7, MustParse("11 ?? ?? 22 ?? ?? 33").Size())
	assert.Equal(t, 13, FromBytes(make([]byte, 13), []int{3, 4}).Size())
}

func TestPattern_IsMatching(t *testing.T) {
	tests := []struct {
		name    string
		pattern *Pattern
		window  []byte
		want    bool
	}{
		{"wildcard in middle", NewPattern(Byte(0x11), Wildcard(1), Byte(0x22)), []byte{0x11, 0x44, 0x22}, true},
		{"tail mismatch", NewPattern(Byte(0x11), Wildcard(1), Byte(0x22)), []byte{0x11, 0x44, 0x00}, false},
		{"two wildcards", NewPattern(Byte(0x11), Wildcard(2), Byte(0x22)), []byte{0x11, 0x44, 0x00, 0x22}, true},
		{
			"second literal mismatch",
			NewPattern(Byte(0x11), Wildcard(2), Byte(0x22), Wildcard(1), Byte(0x33)),
			[]byte{0x11, 0x44, 0x00, 0x00, 0x00, 0x33},
			false,
		},
		{"word byte order", NewPattern(Word(0x2211)), []byte{0x11, 0x22}, true},
		{"word swapped", NewPattern(Word(0x2211)), []byte{0x22, 0x11}, false},
		{"qword", NewPattern(QWord(0x0807060504030201)), []byte{1, 2, 3, 4, 5, 6, 7, 8}, true},
		{"empty pattern", NewPattern(), []byte{}, true},
		{"wildcards skip the filler bytes", MustParse("11 ?? 22 ?? 33"), []byte{0x11, 0xCC, 0x22, 0xCC, 0x33}, true},
		{"literal between wildcards must match", MustParse("11 ?? 22 ?? 33"), []byte{0x11, 0xCC, 0x99, 0xCC, 0x33}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pattern.IsMatching(tt.window))
		})
	}
}

func TestPattern_IsMatchingWrongLengthPanics(t *testing.T) {
	p := MustParse("11 22 33")
	assert.Panics(t, func() { p.IsMatching([]byte{0x11, 0x22}) })
	assert.Panics(t, func() { p.IsMatching([]byte{0x11, 0x22, 0x33, 0x44}) })
}

func TestPattern_MatchesOwnSource(t *testing.T) {
	data := []byte{0x55, 0x48, 0x89, 0xE5, 0x41, 0x57, 0x41, 0x56, 0x41, 0x55, 0x41, 0x54, 0x53, 0x48, 0x83, 0xEC, 0x28}
	for _, wildcards := range [][]int{nil, {0}, {3, 4, 5}, {16}, {1, 2, 3, 4, 5, 6, 7, 8, 9, 10}} {
		p := FromBytes(data, wildcards)
		assert.Equal(t, len(data), p.Size())
		assert.True(t, p.IsMatching(data), "wildcards %v", wildcards)
	}
}

func TestPattern_StringAndBytes(t *testing.T) {
	p := MustParse("48 8b 05 ?? ?? ?? ?? 48 85 c0")
	assert.Equal(t, "48 8B 05 ?? ?? ?? ?? 48 85 C0", p.String())

	data, wildcards := p.Bytes()
	assert.Equal(t, []byte{0x48, 0x8B, 0x05, Placeholder, Placeholder, Placeholder, Placeholder, 0x48, 0x85, 0xC0}, data)
	assert.Equal(t, []int{3, 4, 5, 6}, wildcards)
	assert.True(t, p.Equal(FromBytes(data, wildcards)))
}

func TestPattern_Anchor(t *testing.T) {
	tests := []struct {
		text    string
		wantOff int
		want    []byte
	}{
		{"11 ?? 22 33 44 ?? 55 66", 2, []byte{0x22, 0x33, 0x44}},
		{"11 22 ?? 33 44", 0, []byte{0x11, 0x22}},
		{"?? ?? 01 02 03 04 05 06 07 08 09", 2, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"?? ??", 0, nil},
		{"", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			off, lit := MustParse(tt.text).Anchor()
			assert.Equal(t, tt.wantOff, off)
			assert.Equal(t, tt.want, lit)
		})
	}
}

func TestPattern_AtomsReturnsCopy(t *testing.T) {
	p := MustParse("11 22")
	atoms := p.Atoms()
	atoms[0] = Byte(0xFF)
	assert.Equal(t, []Atom{Word(0x2211)}, p.Atoms())
}
