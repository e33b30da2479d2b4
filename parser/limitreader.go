package parser

import (
	"errors"
	"fmt"
	"io"
)

// DefaultMaxDescriptorBytes bounds how much of a descriptor stream is read.
const DefaultMaxDescriptorBytes int64 = 1 << 20

// LimitedReader wraps an io.Reader with a maximum size limit.
// Input of exactly Limit bytes is accepted; one more byte is an error.
type LimitedReader struct {
	R     io.Reader // underlying reader
	N     int64     // max bytes remaining
	Limit int64     // original limit (for error messages)
	read  int64
	done  bool
}

// NewLimitedReader creates a LimitedReader that reads at most limit bytes.
func NewLimitedReader(r io.Reader, limit int64) *LimitedReader {
	return &LimitedReader{
		R:     r,
		N:     limit,
		Limit: limit,
	}
}

// Read implements io.Reader with size limit enforcement.
func (l *LimitedReader) Read(p []byte) (n int, err error) {
	if l.done {
		return 0, io.EOF
	}

	if l.N <= 0 {
		return 0, l.probe()
	}

	if int64(len(p)) > l.N {
		p = p[0:l.N]
	}

	n, err = l.R.Read(p)
	l.N -= int64(n)
	l.read += int64(n)
	return n, err
}

// maxEmptyProbes bounds how many (0, nil) reads are tolerated at the limit.
const maxEmptyProbes = 100

// probe reads one more byte to tell "exactly at limit" from overflow.
// A reader that keeps making no progress is reported as io.ErrNoProgress.
func (l *LimitedReader) probe() error {
	var buf [1]byte
	for range maxEmptyProbes {
		extra, err := l.R.Read(buf[:])
		if extra > 0 {
			return &SizeLimitExceededError{Limit: l.Limit, Read: l.read + int64(extra)}
		}
		if errors.Is(err, io.EOF) {
			l.done = true
			return io.EOF
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}

// SizeLimitExceededError is returned when the size limit is exceeded.
type SizeLimitExceededError struct {
	Limit int64
	Read  int64
}

func (e *SizeLimitExceededError) Error() string {
	return fmt.Sprintf("size limit exceeded: read %d bytes, limit is %s", e.Read, FormatSize(e.Limit))
}

// IsSizeLimitExceededError returns true if the error is a SizeLimitExceededError.
func IsSizeLimitExceededError(err error) bool {
	var sizeLimitErr *SizeLimitExceededError
	return errors.As(err, &sizeLimitErr)
}

// FormatSize returns a human-readable size string.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
