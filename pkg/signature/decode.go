package signature

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// WildcardToken marks one don't-care byte in signature text.
	WildcardToken = "??"

	// Placeholder fills wildcard positions in decoded signature bytes.
	Placeholder byte = 0xCC
)

var (
	// ErrInvalidToken is returned for a token that is neither two hex
	// digits nor WildcardToken.
	ErrInvalidToken = errors.New("token must be two hex digits or ??")

	// ErrInvalidHexDigit is returned for a two character token containing
	// a non-hex character.
	ErrInvalidHexDigit = errors.New("invalid hex digit")

	// ErrInvalidEncoding is returned when signature text is not UTF-8.
	ErrInvalidEncoding = errors.New("signature is not valid UTF-8")
)

// DecodeError describes the token that could not be decoded.
type DecodeError struct {
	Index int    // token position, 0-based
	Token string // offending token
	Err   error  // ErrInvalidToken or ErrInvalidHexDigit
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("signature token %d %q: %v", e.Index, e.Token, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses space separated signature text such as "48 8B ?? ?? 90"
// into raw bytes and the ascending offsets of its wildcard bytes. Wildcard
// positions hold Placeholder. Hex digits are case-insensitive and empty
// tokens from repeated spaces are skipped.
func Decode(text string) ([]byte, []int, error) {
	if !utf8.ValidString(text) {
		return nil, nil, ErrInvalidEncoding
	}

	tokens := strings.Split(text, " ")
	data := make([]byte, 0, len(tokens))
	var wildcards []int

	for i, tok := range tokens {
		if tok == "" {
			continue
		}

		if tok == WildcardToken {
			wildcards = append(wildcards, len(data))
			data = append(data, Placeholder)
			continue
		}

		if len(tok) != 2 {
			return nil, nil, &DecodeError{Index: i, Token: tok, Err: ErrInvalidToken}
		}

		b, err := hex.DecodeString(tok)
		if err != nil {
			return nil, nil, &DecodeError{Index: i, Token: tok, Err: ErrInvalidHexDigit}
		}
		data = append(data, b[0])
	}

	return data, wildcards, nil
}

// Encode renders bytes and wildcard offsets back to signature text using
// upper-case hex. Decode(Encode(data, wildcards)) yields the same bytes
// with Placeholder at wildcard offsets.
func Encode(data []byte, wildcards []int) string {
	masked := make(map[int]bool, len(wildcards))
	for _, off := range wildcards {
		masked[off] = true
	}

	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if masked[i] {
			sb.WriteString(WildcardToken)
			continue
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
