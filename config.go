package logbuffer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// defaultLogsPerFile mirrors the Java implementation's Chronicle-derived
// default segment capacity (Short.MAX_VALUE excerpts per index file).
const defaultLogsPerFile = 32767

// Config controls how a LogBuffer's SegmentedStore is laid out and how it
// behaves on write.
type Config struct {
	// BasePath is the root directory the buffer persists under. Defaults to
	// <tmpdir>/logbuffer.
	BasePath string

	// LogsPerFile is the segment size in records. Defaults to 32767.
	LogsPerFile int

	// SyncOnWrite forces an fsync after every append when true.
	SyncOnWrite bool

	// DateRangeUnit selects the DateRanges used to format window starts in
	// the chunked tail's debug log. Window alignment itself follows
	// TailOptions.ChunkMs. The zero value is Secondly.
	DateRangeUnit DateRangeUnit

	// Logger receives structured log records for failed tail rounds, failed
	// scheduled rounds, and chunked-tail window selection. Segment rolls and
	// scheduler catch-up decisions are not logged. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = filepath.Join(os.TempDir(), "logbuffer")
	}
	if c.LogsPerFile <= 0 {
		c.LogsPerFile = defaultLogsPerFile
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) dataDir() string {
	return filepath.Join(c.BasePath, "data")
}

func (c Config) tailsDir() string {
	return filepath.Join(c.BasePath, "tails")
}

func (c Config) tailDir(name string) string {
	return filepath.Join(c.tailsDir(), name)
}

func (c Config) dateRanges() DateRanges {
	return NewDateRanges(c.DateRangeUnit)
}

func validateRange(fromIndex, toIndex uint64) error {
	if fromIndex > toIndex {
		return fmt.Errorf("%w: fromIndex %d > toIndex %d", ErrInvalidArgument, fromIndex, toIndex)
	}
	return nil
}

func validateTimeRange(fromTimeMs, toTimeMs int64) error {
	if fromTimeMs > toTimeMs {
		return fmt.Errorf("%w: fromTimeMs %d > toTimeMs %d", ErrInvalidArgument, fromTimeMs, toTimeMs)
	}
	return nil
}
