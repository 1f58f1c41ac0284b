package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile_Literals(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []Atom
	}{
		{"one byte", []byte{0x11}, []Atom{Byte(0x11)}},
		{"two bytes", []byte{0x11, 0x22}, []Atom{Word(0x2211)}},
		{"three bytes", []byte{0x11, 0x22, 0x33}, []Atom{Word(0x2211), Byte(0x33)}},
		{"four bytes", []byte{0x11, 0x22, 0x33, 0x44}, []Atom{DWord(0x44332211)}},
		{"five bytes", []byte{1, 2, 3, 4, 5}, []Atom{DWord(0x04030201), Byte(5)}},
		{"six bytes", []byte{1, 2, 3, 4, 5, 6}, []Atom{DWord(0x04030201), Word(0x0605)}},
		{"seven bytes", []byte{1, 2, 3, 4, 5, 6, 7}, []Atom{DWord(0x04030201), Word(0x0605), Byte(7)}},
		{"eight bytes", []byte{1, 2, 3, 4, 5, 6, 7, 8}, []Atom{QWord(0x0807060504030201)}},
		{
			"thirteen bytes split 8+5",
			[]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
			[]Atom{QWord(0x0807060504030201), DWord(0x0c0b0a09), Byte(13)},
		},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.data, nil))
		})
	}
}

func TestCompile_Wildcards(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		wildcards []int
		want      []Atom
	}{
		{
			"single wildcard",
			[]byte{0x11, 0x00, 0x22},
			[]int{1},
			[]Atom{Byte(0x11), Wildcard(1), Byte(0x22)},
		},
		{
			"adjacent wildcards collapse",
			[]byte{0x11, 0x00, 0x00, 0x22},
			[]int{1, 2},
			[]Atom{Byte(0x11), Wildcard(2), Byte(0x22)},
		},
		{
			"alternating runs",
			[]byte{0x11, 0x00, 0x00, 0x22, 0x00, 0x33},
			[]int{1, 2, 4},
			[]Atom{Byte(0x11), Wildcard(2), Byte(0x22), Wildcard(1), Byte(0x33)},
		},
		{
			"unordered and duplicate offsets",
			[]byte{0x11, 0x00, 0x00, 0x22},
			[]int{2, 1, 2},
			[]Atom{Byte(0x11), Wildcard(2), Byte(0x22)},
		},
		{
			"out of range offsets ignored",
			[]byte{0x11, 0x22},
			[]int{-1, 2, 100},
			[]Atom{Word(0x2211)},
		},
		{
			"leading and trailing wildcards",
			[]byte{0x00, 0x11, 0x22, 0x00},
			[]int{0, 3},
			[]Atom{Wildcard(1), Word(0x2211), Wildcard(1)},
		},
		{
			"all wildcards",
			[]byte{0, 0, 0},
			[]int{0, 1, 2},
			[]Atom{Wildcard(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.data, tt.wildcards))
		})
	}
}

func TestCompile_LongWildcardRunIsNotSplit(t *testing.T) {
	data := make([]byte, 11)
	data[0], data[10] = 0xAA, 0xBB
	wildcards := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}

	atoms := Compile(data, wildcards)

	assert.Equal(t, []Atom{Byte(0xAA), Wildcard(9), Byte(0xBB)}, atoms)
}

func TestCompile_TilesInput(t *testing.T) {
	data := []byte{0x90, 0x48, 0x8B, 0x05, 0, 0, 0, 0, 0x48, 0x85, 0xC0, 0x74, 0x0F, 0xE8, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	wildcards := []int{4, 5, 6, 7}

	atoms := Compile(data, wildcards)

	total := 0
	for _, a := range atoms {
		total += a.Width()
	}
	assert.Equal(t, len(data), total)
	assert.Equal(t, atoms, Compile(data, wildcards), "compilation must be deterministic")
}

func TestAppendChunk_InvalidLengthPanics(t *testing.T) {
	assert.Panics(t, func() { appendChunk(nil, nil) })
	assert.Panics(t, func() { appendChunk(nil, make([]byte, 9)) })
}

func TestWildcard_NonPositivePanics(t *testing.T) {
	assert.Panics(t, func() { Wildcard(0) })
}

func TestAtom_String(t *testing.T) {
	assert.Equal(t, "u16(0x2211)", Word(0x2211).String())
	assert.Equal(t, "skip(3)", Wildcard(3).String())
	assert.Equal(t, "fixed", Byte(1).Kind().String())
	assert.Equal(t, "wildcard", Wildcard(1).Kind().String())
}
