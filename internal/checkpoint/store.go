// Package checkpoint persists spigot checkpoints atomically and durably.
//
// A checkpoint file is only ever replaced by rename, so at every instant the
// canonical path holds either the previous complete record or the new one.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the checkpoint file name inside the output directory.
const FileName = "pi_state.json"

// Store reads and writes the checkpoint for one output directory.
// It is not safe for concurrent use by multiple processes.
type Store struct {
	path   string
	logger *slog.Logger

	// rename is swapped in tests to simulate a crash before the commit point.
	rename func(oldpath, newpath string) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report ignored checkpoint files.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store for the checkpoint inside dir, creating dir if needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return newStore(dir, opts), nil
}

// OpenStore opens the checkpoint inside an existing dir for inspection. It
// never creates anything; a missing dir is reported as fs.ErrNotExist.
func OpenStore(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("checkpoint location %s is not a directory", dir)
	}
	return newStore(dir, opts), nil
}

func newStore(dir string, opts []Option) *Store {
	s := &Store{
		path:   filepath.Join(dir, FileName),
		logger: slog.Default(),
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "checkpoint")
	return s
}

// Path returns the canonical checkpoint path.
func (s *Store) Path() string {
	return s.path
}

// Save atomically replaces the checkpoint with c.
func (s *Store) Save(c Checkpoint) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid checkpoint: %w", err)
	}
	data, err := json.MarshalIndent(toRecord(c), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	data = append(data, '\n')
	if err := s.writeAtomic(data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored checkpoint.
//
// A missing, unparsable or invalid file yields (nil, nil) so the caller can
// fall back to reconciling from the artifact. Only a file that exists but
// cannot be read produces an error.
func (s *Store) Load() (*Checkpoint, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var rec record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		s.logger.Warn("ignoring malformed checkpoint", "path", s.path, "error", err)
		return nil, nil
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		s.logger.Warn("ignoring malformed checkpoint", "path", s.path, "error", "trailing content")
		return nil, nil
	}

	c := rec.checkpoint()
	if err := c.Validate(); err != nil {
		s.logger.Warn("ignoring invalid checkpoint", "path", s.path, "error", err)
		return nil, nil
	}
	return &c, nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, FileName+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
