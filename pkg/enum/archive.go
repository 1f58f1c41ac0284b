package enum

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ErrLimitExceeded is returned when an archive member exceeds ExtractLimits.
var ErrLimitExceeded = errors.New("archive extraction limit exceeded")

// ArchiveMember is one decompressed entry of an archive.
type ArchiveMember struct {
	Name    string // path within the archive
	Content []byte
}

// ExtractLimits bounds the work done per archive.
type ExtractLimits struct {
	MaxMemberSize int64 // per member (0 = DefaultExtractLimits value)
	MaxTotalSize  int64 // all members of one archive
	MaxMembers    int   // members yielded per archive
}

// DefaultExtractLimits returns conservative limits suitable for scanning
// untrusted archives.
func DefaultExtractLimits() ExtractLimits {
	return ExtractLimits{
		MaxMemberSize: 64 << 20,
		MaxTotalSize:  256 << 20,
		MaxMembers:    10000,
	}
}

func (l ExtractLimits) withDefaults() ExtractLimits {
	d := DefaultExtractLimits()
	if l.MaxMemberSize <= 0 {
		l.MaxMemberSize = d.MaxMemberSize
	}
	if l.MaxTotalSize <= 0 {
		l.MaxTotalSize = d.MaxTotalSize
	}
	if l.MaxMembers <= 0 {
		l.MaxMembers = d.MaxMembers
	}
	return l
}

// ArchiveKind returns the archive format implied by a path's extension,
// or "" when the path is not a supported archive.
func ArchiveKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".jar", ".apk":
		return "zip"
	case ".7z":
		return "7z"
	case ".gz", ".tgz":
		return "gz"
	case ".xz":
		return "xz"
	case ".zst", ".zstd":
		return "zst"
	default:
		return ""
	}
}

// ExtractMembers decompresses the members of an archive held in memory.
// Single-stream formats (gz, xz, zst) yield one member named after the
// file without its compression extension. Members are not recursed into.
func ExtractMembers(path string, content []byte, limits ExtractLimits) ([]ArchiveMember, error) {
	limits = limits.withDefaults()

	switch ArchiveKind(path) {
	case "zip":
		return extractZip(content, limits)
	case "7z":
		return extract7z(content, limits)
	case "gz":
		r, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer r.Close()
		return extractStream(streamName(path, r.Name), r, limits)
	case "xz":
		r, err := xz.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		return extractStream(streamName(path, ""), r, limits)
	case "zst":
		r, err := zstd.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer r.Close()
		return extractStream(streamName(path, ""), r, limits)
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", filepath.Ext(path))
	}
}

func extractZip(content []byte, limits ExtractLimits) ([]ArchiveMember, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	var (
		members []ArchiveMember
		total   int64
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if len(members) >= limits.MaxMembers {
			break
		}
		data, err := readMember(f.Open, limits.MaxMemberSize)
		if err != nil {
			return members, fmt.Errorf("zip member %s: %w", f.Name, err)
		}
		total += int64(len(data))
		if total > limits.MaxTotalSize {
			return members, ErrLimitExceeded
		}
		members = append(members, ArchiveMember{Name: f.Name, Content: data})
	}
	return members, nil
}

func extract7z(content []byte, limits ExtractLimits) ([]ArchiveMember, error) {
	sr, err := sevenzip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z: %w", err)
	}

	var (
		members []ArchiveMember
		total   int64
	)
	for _, f := range sr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if len(members) >= limits.MaxMembers {
			break
		}
		data, err := readMember(f.Open, limits.MaxMemberSize)
		if err != nil {
			return members, fmt.Errorf("7z member %s: %w", f.Name, err)
		}
		total += int64(len(data))
		if total > limits.MaxTotalSize {
			return members, ErrLimitExceeded
		}
		members = append(members, ArchiveMember{Name: f.Name, Content: data})
	}
	return members, nil
}

func extractStream(name string, r io.Reader, limits ExtractLimits) ([]ArchiveMember, error) {
	data, err := readLimited(r, limits.MaxMemberSize)
	if err != nil {
		return nil, err
	}
	return []ArchiveMember{{Name: name, Content: data}}, nil
}

func readMember(open func() (io.ReadCloser, error), limit int64) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc, limit)
}

// readLimited reads at most limit bytes and fails if more remain.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrLimitExceeded
	}
	return data, nil
}

// streamName names the single member of a compressed stream: the name
// stored in the header when present, else the file name without its
// compression extension.
func streamName(path, stored string) string {
	if stored != "" {
		return stored
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if strings.EqualFold(ext, ".tgz") {
		return strings.TrimSuffix(base, ext) + ".tar"
	}
	return strings.TrimSuffix(base, ext)
}

// shouldExtract checks if an archive kind should be extracted based on config.
func shouldExtract(config Config, kind string) bool {
	if config.ExtractArchives == "" || kind == "" {
		return false
	}
	if config.ExtractArchives == "all" {
		return true
	}
	for _, t := range strings.Split(strings.ToLower(config.ExtractArchives), ",") {
		if strings.TrimSpace(t) == kind {
			return true
		}
	}
	return false
}
