package checkpoint

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
)

// Store persists the byte offset up to which a single log file has been consumed.
// The file holds the offset as a decimal string.
type Store struct {
	path   string
	logger *logging.Logger
}

// NewStore creates a store backed by the given position file
func NewStore(path string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		path:   path,
		logger: logger.WithComponent("checkpoint"),
	}
}

// PathFor derives a position file name under dir that is unique per log file,
// so adapters tailing different files never share a cursor.
func PathFor(dir, logPath string) string {
	abs, err := filepath.Abs(logPath)
	if err != nil {
		abs = logPath
	}

	h := fnv.New32a()
	h.Write([]byte(abs))

	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	return filepath.Join(dir, fmt.Sprintf("%s-%08x.pos", base, h.Sum32()))
}

// Path returns the position file path
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored offset. A missing file yields 0. Unparseable content
// also yields 0 with a warning, which means already-seen lines may be
// reprocessed. Only genuine I/O failures are returned as errors.
func (s *Store) Load() (int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read position file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}

	offset, err := strconv.ParseInt(text, 10, 64)
	if err != nil || offset < 0 {
		s.logger.Warn().
			Str("path", s.path).
			Str("content", truncate(text, 64)).
			Msg("Corrupt position file, starting from offset 0")
		return 0, nil
	}

	return offset, nil
}

// Save persists the offset. The value is written to a temporary file and
// renamed over the target, so a crash never leaves a half-written offset.
func (s *Store) Save(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("invalid offset %d", offset)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create position directory: %w", err)
	}

	tmpFile := s.path + ".tmp"
	f, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open position file: %w", err)
	}

	if _, err := f.WriteString(strconv.FormatInt(offset, 10)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write position file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync position file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close position file: %w", err)
	}

	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("failed to rename position file: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
