package signature

import (
	"errors"
	"iter"
)

// Done is returned by Scanner.Next once every window has been tested.
var Done = errors.New("no more matches in scanner")

// Hit is one matching window.
type Hit struct {
	Offset int    // start of the window in the haystack
	Window []byte // haystack[Offset : Offset+Size()], not a copy
}

// Scanner slides a Size()-byte window across a haystack one byte at a time
// and yields every offset where the pattern matches, in increasing order.
// Overlapping matches are all reported.
//
// A zero-size pattern matches at every offset from 0 through len(haystack)
// inclusive, each with an empty window.
//
// A Scanner is single-pass and not safe for concurrent use.
type Scanner struct {
	pattern  *Pattern
	haystack []byte
	cursor   int
}

// NewScanner creates a scanner positioned at the start of haystack.
func NewScanner(p *Pattern, haystack []byte) *Scanner {
	return &Scanner{pattern: p, haystack: haystack}
}

// Next returns the next matching window, or Done when the haystack is
// exhausted. Further calls keep returning Done.
func (s *Scanner) Next() (Hit, error) {
	size := s.pattern.Size()
	for s.cursor+size <= len(s.haystack) {
		off := s.cursor
		s.cursor++

		window := s.haystack[off : off+size : off+size]
		if s.pattern.IsMatching(window) {
			return Hit{Offset: off, Window: window}, nil
		}
	}
	return Hit{}, Done
}

// All returns the remaining matches as a range-over-func sequence of
// (offset, window) pairs. It consumes the same cursor as Next, so ranging
// twice only yields matches once; breaking out early leaves the cursor just
// after the last yielded offset.
func (s *Scanner) All() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for {
			hit, err := s.Next()
			if err != nil {
				return
			}
			if !yield(hit.Offset, hit.Window) {
				return
			}
		}
	}
}

// Offset returns the position of the next candidate window.
func (s *Scanner) Offset() int {
	return s.cursor
}
