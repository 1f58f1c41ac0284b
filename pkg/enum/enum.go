package enum

import (
	"context"

	"github.com/praetorian-inc/sigscan/pkg/types"
	"go.uber.org/zap"
)

// Enumerator discovers content to scan from a source.
type Enumerator interface {
	// Enumerate yields blobs from the source.
	// The callback receives blob content, its ID, and provenance information.
	// The callback may be invoked from several goroutines at once.
	Enumerate(ctx context.Context, callback func(content []byte, blobID types.BlobID, prov types.Provenance) error) error
}

// Config for enumeration.
type Config struct {
	// Root is the starting path for enumeration.
	Root string

	// IncludeHidden includes hidden files/directories (starting with .).
	IncludeHidden bool

	// MaxFileSize is the maximum file size to process (0 = no limit).
	MaxFileSize int64

	// FollowSymlinks follows symbolic links.
	FollowSymlinks bool

	// ExtractArchives enables scanning of archive members
	// (comma-separated: zip,7z,gz,xz,zst or 'all').
	ExtractArchives string

	// ExtractLimits bounds archive member extraction.
	ExtractLimits ExtractLimits

	// Workers is the number of parallel file readers (0 = NumCPU).
	Workers int

	// Logger receives warnings about skipped files; nil means no logging.
	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
