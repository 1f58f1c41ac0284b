package matcher

import (
	"github.com/praetorian-inc/sigscan/pkg/types"
	"go.uber.org/zap"
)

// Matcher scans content for rule matches.
type Matcher interface {
	// Match scans content against all loaded rules.
	// Returns matches with offsets and snippets.
	Match(content []byte) ([]*types.Match, error)

	// MatchWithBlobID scans content with a known BlobID.
	MatchWithBlobID(content []byte, blobID types.BlobID) ([]*types.Match, error)

	// MatchDetailed scans content and also reports what happened to each
	// rule: filtered by the prefilter, scanned, or cut off at the cap.
	MatchDetailed(content []byte, blobID types.BlobID) (*MatchResult, error)

	// Close releases resources.
	Close() error
}

// Config for matcher initialization.
type Config struct {
	// Rules to compile and load into the matcher
	Rules []*types.Rule

	// ContextBytes is the number of bytes captured before and after each
	// match in its snippet (0 = matched window only)
	ContextBytes int

	// MaxMatchesPerBlob limits matches returned per blob (0 = unlimited)
	MaxMatchesPerBlob int

	// DedupeMode selects how repeated matches within a blob collapse
	// (default DedupeByLocation)
	DedupeMode DedupeMode

	// DisablePrefilter runs every rule against every blob
	DisablePrefilter bool

	// Logger receives debug output; nil means no logging
	Logger *zap.Logger
}

// New creates a new Matcher with the given config.
func New(cfg Config) (Matcher, error) {
	return NewSignature(cfg)
}
