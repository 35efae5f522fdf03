// Package sink owns the append-only π digit artifact.
//
// The artifact is the literal prefix "3." followed by fractional digits,
// optionally broken into lines. Appends are buffered; Sync is the durability
// barrier that flushes the buffer and fsyncs the file.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// FileName is the artifact file name inside the output directory.
	FileName = "pi_digits.txt"

	// Prefix is written once to a fresh artifact.
	Prefix = "3."

	bufferSize = 64 * 1024
)

// ErrBadPrefix is returned when an existing artifact does not start with Prefix.
var ErrBadPrefix = errors.New("artifact does not start with the expected prefix")

// File is an open artifact. It is not safe for concurrent use.
type File struct {
	f        *os.File
	w        *bufio.Writer
	unsynced int
	last     byte
}

// Open opens the artifact at path for appending, creating it and writing the
// prefix durably when it is new, empty or holds only part of the prefix.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	out := &File{f: f}

	missing, err := missingPrefix(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}

	if missing != "" {
		if _, err := f.WriteString(missing); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write artifact prefix: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to sync artifact prefix: %w", err)
		}
		out.last = Prefix[len(Prefix)-1]
	} else {
		if err := out.readBounds(info.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}

	out.w = bufio.NewWriterSize(f, bufferSize)
	return out, nil
}

// missingPrefix returns the part of Prefix a fresh or cut-off artifact still
// lacks. An artifact holding more than a partial prefix needs nothing.
func missingPrefix(f *os.File, size int64) (string, error) {
	if size >= int64(len(Prefix)) {
		return "", nil
	}
	head := make([]byte, size)
	if _, err := f.ReadAt(head, 0); err != nil {
		return "", fmt.Errorf("failed to read artifact prefix: %w", err)
	}
	if !strings.HasPrefix(Prefix, string(head)) {
		return "", fmt.Errorf("%w: found %q", ErrBadPrefix, head)
	}
	return Prefix[size:], nil
}

func (s *File) readBounds(size int64) error {
	head := make([]byte, len(Prefix))
	if _, err := s.f.ReadAt(head, 0); err != nil {
		return fmt.Errorf("failed to read artifact prefix: %w", err)
	}
	if string(head) != Prefix {
		return fmt.Errorf("%w: found %q", ErrBadPrefix, head)
	}
	tail := make([]byte, 1)
	if _, err := s.f.ReadAt(tail, size-1); err != nil {
		return fmt.Errorf("failed to read artifact tail: %w", err)
	}
	s.last = tail[0]
	return nil
}

// Append buffers one character, digit or formatting.
func (s *File) Append(c byte) error {
	if err := s.w.WriteByte(c); err != nil {
		return fmt.Errorf("failed to append to artifact: %w", err)
	}
	s.unsynced++
	s.last = c
	return nil
}

// Unsynced returns the number of characters appended since the last Sync.
func (s *File) Unsynced() int {
	return s.unsynced
}

// LastByte returns the final character of the artifact, buffered or not.
func (s *File) LastByte() byte {
	return s.last
}

// Sync flushes buffered characters and forces them to stable storage.
func (s *File) Sync() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush artifact: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	s.unsynced = 0
	return nil
}

// Close flushes the buffer and closes the file. It does not fsync; callers
// wanting durability call Sync first.
func (s *File) Close() error {
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush artifact: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close artifact: %w", closeErr)
	}
	return nil
}

// ScanDigits streams the fractional digits of the artifact at path, calling fn
// with each digit's 1-based position and its ASCII character. Formatting
// characters are skipped. A missing artifact, or one cut off inside the prefix,
// has zero digits. Scanning stops
// at the first error returned by fn.
func ScanDigits(path string, fn func(pos uint64, digit byte) error) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, bufferSize)
	head := make([]byte, len(Prefix))
	n, err := io.ReadFull(r, head)
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("failed to read artifact: %w", err)
		}
		if strings.HasPrefix(Prefix, string(head[:n])) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: found %q", ErrBadPrefix, head[:n])
	}
	if string(head) != Prefix {
		return 0, fmt.Errorf("%w: found %q", ErrBadPrefix, head)
	}

	var count uint64
	for {
		c, err := r.ReadByte()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read artifact: %w", err)
		}
		if c < '0' || c > '9' {
			continue
		}
		count++
		if fn != nil {
			if err := fn(count, c); err != nil {
				return count, err
			}
		}
	}
}

// CountDigits returns the number of fractional digits in the artifact at path.
func CountDigits(path string) (uint64, error) {
	return ScanDigits(path, nil)
}
