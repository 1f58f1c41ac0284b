package types

// Snippet contains raw bytes around a match.
type Snippet struct {
	Before   []byte // up to ContextBytes bytes before the match
	Matching []byte // the matched window
	After    []byte // up to ContextBytes bytes after the match
}

// NewSnippet cuts a snippet for content[start:end] with up to context bytes
// on each side. The returned slices are copies.
func NewSnippet(content []byte, start, end, context int) Snippet {
	before := max(start-context, 0)
	after := min(end+context, len(content))
	return Snippet{
		Before:   clone(content[before:start]),
		Matching: clone(content[start:end]),
		After:    clone(content[end:after]),
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
