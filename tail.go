package logbuffer

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
)

// TailFunc is the callback a tail invokes with each delivered batch. The
// cursor advances only when it returns nil.
type TailFunc func(batch []Record) error

// TailOptions configures one registered tail.
type TailOptions struct {
	// Tail is the delivery callback.
	Tail TailFunc
	// Type restricts delivery to records of this registered type. nil means
	// all records (raw and typed alike).
	Type reflect.Type
	// ChunkMs, if positive, makes this a chunked tail with that window size.
	ChunkMs int64
}

// ForwardResult is returned by one tail round.
type ForwardResult struct {
	// ReachedTip is true when the round delivered everything available as of
	// when it started; false signals the scheduler should run the next round
	// immediately instead of waiting out the configured delay.
	ReachedTip bool
}

// cursorFileName is the single file a cursorStore appends fixed 8-byte
// big-endian index values to; the current cursor is the last one written.
const cursorFileName = "cursor"

// cursorStore is each tail's tiny dedicated append-only store: a single file
// of fixed 8-byte values, separate from the main log's segment files, so
// recovery is just "read the last entry". One cursorStore lives under
// basePath/tails/<name>/.
type cursorStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openCursorStore(dir string) (*cursorStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create tail cursor directory: %w", err)
	}
	path := filepath.Join(dir, cursorFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open tail cursor file: %w", err)
	}
	return &cursorStore{path: path, f: f}, nil
}

// Load returns the last persisted cursor value, or 0 if none was ever written.
func (c *cursorStore) Load() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := c.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat tail cursor file: %w", err)
	}
	if info.Size() < 8 {
		return 0, nil
	}
	buf := make([]byte, 8)
	if _, err := c.f.ReadAt(buf, info.Size()-8); err != nil {
		return 0, fmt.Errorf("read tail cursor: %w", err)
	}
	return binary.BigEndian.Uint64(buf), nil
}

// Store appends index as the new cursor value.
func (c *cursorStore) Store(index uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, index)
	if _, err := c.f.Write(buf); err != nil {
		return fmt.Errorf("write tail cursor: %w", err)
	}
	return c.f.Sync()
}

func (c *cursorStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}

// TailRunner drives one named tail's rounds: load cursor, read a batch from
// the buffer, invoke the callback, and persist the new cursor only on
// success. It dispatches between the whole-backlog variant (runOnceWhole)
// and the chunked variant (runOnceChunked) based on opts.ChunkMs.
type TailRunner struct {
	name       string
	lb         *LogBuffer
	opts       TailOptions
	cursor     *cursorStore
	logger     *slog.Logger
	dateRanges DateRanges

	mu          sync.Mutex
	interrupted bool
}

func newTailRunner(name string, lb *LogBuffer, opts TailOptions, cfg Config) (*TailRunner, error) {
	if opts.Tail == nil {
		return nil, fmt.Errorf("%w: tail %q has no callback", ErrInvalidArgument, name)
	}
	cursor, err := openCursorStore(cfg.tailDir(name))
	if err != nil {
		return nil, err
	}
	return &TailRunner{
		name:       name,
		lb:         lb,
		opts:       opts,
		cursor:     cursor,
		logger:     cfg.Logger.With("component", "tail", "name", name),
		dateRanges: cfg.dateRanges(),
	}, nil
}

// CursorIndex returns the persisted cursor.
func (t *TailRunner) CursorIndex() (uint64, error) {
	return t.cursor.Load()
}

// RunOnce runs one delivery round, whole-backlog or chunked depending on how
// the tail was registered.
func (t *TailRunner) RunOnce() (ForwardResult, error) {
	t.mu.Lock()
	if t.interrupted {
		t.mu.Unlock()
		return ForwardResult{}, fmt.Errorf("%w: tail %q cancelled", ErrClosed, t.name)
	}
	t.mu.Unlock()

	if t.opts.ChunkMs > 0 {
		return t.runOnceChunked()
	}
	return t.runOnceWhole()
}

// runOnceWhole implements the whole-backlog delivery round: deliver every
// record from the cursor up to the current write index in one batch.
func (t *TailRunner) runOnceWhole() (ForwardResult, error) {
	from, err := t.cursor.Load()
	if err != nil {
		return ForwardResult{}, err
	}

	to, err := t.lb.WriteIndex()
	if err != nil {
		return ForwardResult{}, err
	}

	if from == to {
		return ForwardResult{ReachedTip: true}, nil
	}

	batch, err := t.selectRange(from, to)
	if err != nil {
		return ForwardResult{}, err
	}

	if err := t.opts.Tail(batch); err != nil {
		t.logger.Warn("tail round failed, cursor not advanced", "from", from, "to", to, "error", err)
		return ForwardResult{}, newTailFailure(t.name, err)
	}

	if err := t.cursor.Store(to); err != nil {
		return ForwardResult{}, err
	}
	return ForwardResult{ReachedTip: true}, nil
}

// selectRange selects [from, to) respecting the tail's type filter: nil
// means every record, raw and typed alike.
func (t *TailRunner) selectRange(from, to uint64) ([]Record, error) {
	if t.opts.Type == nil {
		return t.lb.Select(from, to)
	}
	return t.lb.SelectTyped(from, to, t.opts.Type)
}

// selectForwardRange calls SelectForward (or a type-filtered equivalent)
// respecting the tail's type filter.
func (t *TailRunner) selectForwardRange(fromIndex uint64, fromTimeMs, toTimeMs int64) ([]Record, error) {
	batch, err := t.lb.SelectForward(&fromIndex, fromTimeMs, toTimeMs)
	if err != nil || t.opts.Type == nil {
		return batch, err
	}
	filtered := make([]Record, 0, len(batch))
	for _, rec := range batch {
		if rec.Type == RawType {
			continue
		}
		classRt, ok := t.lb.registry.ClassFor(rec.Type)
		if ok && classRt == t.opts.Type {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

// Close releases the cursor store's file handle.
func (t *TailRunner) Close() {
	t.mu.Lock()
	t.interrupted = true
	t.mu.Unlock()
	_ = t.cursor.Close()
}
