package tailer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
)

// Tailer reads lines appended to a single log file since a given offset.
// It is not safe for concurrent use; the poll loop owns it.
type Tailer struct {
	path   string
	logger *logging.Logger

	// inode of the file the stored offset refers to, set by Commit
	inode uint64
}

// New creates a new Tailer for path
func New(path string, logger *logging.Logger) *Tailer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tailer{
		path:   path,
		logger: logger.WithComponent("tailer").WithField("path", path),
	}
}

// Path returns the tailed file path
func (t *Tailer) Path() string {
	return t.path
}

// Read returns every complete line written after offset, and the offset just
// past the last of them. A trailing line without a newline is left for the
// next call. A missing file is not an error: nothing is returned and the
// offset is unchanged.
//
// If offset lies beyond the end of the file, or the file is not the one
// last committed, the offset is reset to 0 and the file is read from the
// start. Read does not change which file is current: call Commit once the
// returned offset has been persisted.
func (t *Tailer) Read(offset int64) (types.ReadResult, error) {
	result := types.ReadResult{Offset: offset}

	file, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return result, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return result, fmt.Errorf("failed to stat log file: %w", err)
	}

	inode := getInode(stat)
	size := stat.Size()

	switch {
	case offset > size:
		t.logger.Warn().
			Int64("offset", offset).
			Int64("size", size).
			Msg("Log file truncated, reprocessing from start")
		offset = 0
		result.Reset = true
	case t.inode != 0 && inode != 0 && inode != t.inode && offset > 0:
		t.logger.Warn().
			Uint64("old_inode", t.inode).
			Uint64("new_inode", inode).
			Msg("Log file replaced, reprocessing from start")
		offset = 0
		result.Reset = true
	}
	result.Inode = inode
	result.Offset = offset

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("failed to seek to offset %d: %w", offset, err)
	}

	// Only read what existed when the pass started, so a busy producer
	// cannot keep a single pass running forever.
	reader := bufio.NewReader(io.LimitReader(file, size-offset))
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Partial trailing line, if any, waits for its newline
				break
			}
			return result, fmt.Errorf("failed to read log file: %w", err)
		}

		offset += int64(len(line))
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		result.Lines = append(result.Lines, line)
	}

	result.Offset = offset
	return result, nil
}

// Commit makes the file read by result the current one, so that later
// offsets are taken to refer to it. Results of a missing file are ignored.
func (t *Tailer) Commit(result types.ReadResult) {
	if result.Inode != 0 {
		t.inode = result.Inode
	}
}

// getInode extracts inode from FileInfo
func getInode(fi os.FileInfo) uint64 {
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
