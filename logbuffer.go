package logbuffer

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// LogBuffer is the orchestrator: it owns a SegmentedStore and a
// SerializerRegistry and exposes append, positional/time scans, typed
// projection, and tail management. Appends and scans are protected by
// separate mutexes (writerMu, readerMu) so a scan never waits for the writer
// lock, and a third mutex (tailsMu) guards tail registration and the shared
// scheduler.
type LogBuffer struct {
	cfg      Config
	store    SegmentedStore
	registry SerializerRegistry
	logger   *slog.Logger

	writerMu      sync.Mutex
	lastWrittenTs int64

	readerMu sync.Mutex

	tailsMu sync.Mutex
	tails   map[string]*registeredTail
	sched   *Scheduler

	closed bool
}

type registeredTail struct {
	runner *TailRunner
	cancel func()
}

// Open creates or reopens a LogBuffer rooted at cfg.BasePath, using registry
// for typed encode/decode (pass nil to use a fresh empty Registry).
func Open(cfg Config, registry SerializerRegistry) (*LogBuffer, error) {
	cfg = cfg.withDefaults()
	store, err := OpenFileStore(cfg.dataDir(), cfg.LogsPerFile, cfg.SyncOnWrite)
	if err != nil {
		return nil, fmt.Errorf("open segmented store: %w", err)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return newLogBuffer(cfg, store, registry)
}

// OpenWithStore creates a LogBuffer over a caller-supplied SegmentedStore
// (e.g. a SQLiteStore) instead of the default rolling-segment FileStore.
func OpenWithStore(cfg Config, store SegmentedStore, registry SerializerRegistry) (*LogBuffer, error) {
	cfg = cfg.withDefaults()
	if registry == nil {
		registry = NewRegistry()
	}
	return newLogBuffer(cfg, store, registry)
}

func newLogBuffer(cfg Config, store SegmentedStore, registry SerializerRegistry) (*LogBuffer, error) {
	lb := &LogBuffer{
		cfg:      cfg,
		store:    store,
		registry: registry,
		logger:   cfg.Logger.With("component", "logbuffer"),
		tails:    make(map[string]*registeredTail),
	}
	return lb, nil
}

// RegisterSerializer binds typeTag to rt on the buffer's registry, if that
// registry is the default *Registry.
func (lb *LogBuffer) RegisterSerializer(typeTag uint64, rt reflect.Type, encode func(v any) ([]byte, error), decode func(data []byte) (any, error)) error {
	reg, ok := lb.registry.(*Registry)
	if !ok {
		return fmt.Errorf("logbuffer: registry does not support direct registration")
	}
	return reg.Register(typeTag, rt, encode, decode)
}

// Write appends a raw payload with type tag 0.
func (lb *LogBuffer) Write(payload []byte) (Record, error) {
	return lb.writeFramed(RawType, payload)
}

// WriteObject encodes v through the registry and appends the result.
func (lb *LogBuffer) WriteObject(v any) (Record, error) {
	typeTag, data, err := lb.registry.Encode(v)
	if err != nil {
		return Record{}, err
	}
	if typeTag == RawType {
		return Record{}, fmt.Errorf("%w: encoder returned reserved tag 0", ErrInvalidArgument)
	}
	return lb.writeFramed(typeTag, data)
}

func (lb *LogBuffer) writeFramed(typeTag uint64, payload []byte) (Record, error) {
	lb.writerMu.Lock()
	defer lb.writerMu.Unlock()

	if lb.closed {
		return Record{}, ErrClosed
	}

	now := time.Now().UnixMilli()
	if now < lb.lastWrittenTs {
		now = lb.lastWrittenTs
	}

	frame := EncodeRecord(typeTag, now, payload)
	index, err := lb.store.Append(frame)
	if err != nil {
		return Record{}, fmt.Errorf("append record: %w", err)
	}
	lb.lastWrittenTs = now

	return Record{Index: index, Type: typeTag, Timestamp: now, Payload: payload}, nil
}

// WriteIndex returns the next index that will be assigned. Takes the writer
// lock so callers get a consistent upper bound.
func (lb *LogBuffer) WriteIndex() (uint64, error) {
	lb.writerMu.Lock()
	defer lb.writerMu.Unlock()
	if lb.closed {
		return 0, ErrClosed
	}
	return lb.store.WriteIndex()
}

// Select returns records with indexes in [fromIndex, toIndex). Missing
// records at the tail of the store stop the scan cleanly rather than erroring.
func (lb *LogBuffer) Select(fromIndex, toIndex uint64) ([]Record, error) {
	if err := validateRange(fromIndex, toIndex); err != nil {
		return nil, err
	}

	lb.readerMu.Lock()
	defer lb.readerMu.Unlock()
	if lb.closed {
		return nil, ErrClosed
	}

	var out []Record
	for i := fromIndex; i < toIndex; i++ {
		frame, ok, err := lb.store.Read(i)
		if err != nil {
			return nil, fmt.Errorf("read index %d: %w", i, err)
		}
		if !ok {
			break
		}
		rec, err := DecodeRecord(i, frame)
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// SelectForward scans forward through indices starting at fromIndex (or 0 if
// nil) looking for timestamp in [fromTimeMs, toTimeMs], breaking as soon as a
// record's timestamp exceeds toTimeMs. Exploits monotonic timestamps.
func (lb *LogBuffer) SelectForward(fromIndex *uint64, fromTimeMs, toTimeMs int64) ([]Record, error) {
	if err := validateTimeRange(fromTimeMs, toTimeMs); err != nil {
		return nil, err
	}

	lb.readerMu.Lock()
	defer lb.readerMu.Unlock()
	if lb.closed {
		return nil, ErrClosed
	}

	start := uint64(0)
	if fromIndex != nil {
		start = *fromIndex
	}

	var out []Record
	for i := start; ; i++ {
		frame, ok, err := lb.store.Read(i)
		if err != nil {
			return nil, fmt.Errorf("read index %d: %w", i, err)
		}
		if !ok {
			break
		}
		_, ts, err := PeekHeader(frame)
		if err != nil {
			break
		}
		if ts > toTimeMs {
			break
		}
		if ts < fromTimeMs {
			continue
		}
		rec, err := DecodeRecord(i, frame)
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// SelectBackward scans backward from writeIndex-1, prepending matches,
// breaking when timestamp < fromTimeMs. Result is ascending-time order.
func (lb *LogBuffer) SelectBackward(fromTimeMs, toTimeMs int64) ([]Record, error) {
	if err := validateTimeRange(fromTimeMs, toTimeMs); err != nil {
		return nil, err
	}

	lb.readerMu.Lock()
	defer lb.readerMu.Unlock()
	if lb.closed {
		return nil, ErrClosed
	}

	writeIndex, err := lb.store.WriteIndex()
	if err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	if writeIndex == 0 {
		return nil, nil
	}

	var out []Record
	for i := writeIndex - 1; ; i-- {
		frame, ok, err := lb.store.Read(i)
		if err != nil {
			return nil, fmt.Errorf("read index %d: %w", i, err)
		}
		if !ok {
			if i == 0 {
				break
			}
			continue
		}
		_, ts, err := PeekHeader(frame)
		if err != nil {
			if i == 0 {
				break
			}
			continue
		}
		if ts < fromTimeMs {
			break
		}
		if ts <= toTimeMs {
			rec, err := DecodeRecord(i, frame)
			if err == nil {
				out = append([]Record{rec}, out...)
			}
		}
		if i == 0 {
			break
		}
	}
	return out, nil
}

// SelectTyped filters [fromIndex, toIndex) to records whose registered class
// is rt. Raw records (type 0) are included only when rt is nil.
func (lb *LogBuffer) SelectTyped(fromIndex, toIndex uint64, rt reflect.Type) ([]Record, error) {
	if err := validateRange(fromIndex, toIndex); err != nil {
		return nil, err
	}

	lb.readerMu.Lock()
	defer lb.readerMu.Unlock()
	if lb.closed {
		return nil, ErrClosed
	}

	var out []Record
	for i := fromIndex; i < toIndex; i++ {
		frame, ok, err := lb.store.Read(i)
		if err != nil {
			return nil, fmt.Errorf("read index %d: %w", i, err)
		}
		if !ok {
			break
		}
		typeTag, _, err := PeekHeader(frame)
		if err != nil {
			break
		}
		if typeTag == RawType {
			if rt == nil {
				rec, err := DecodeRecord(i, frame)
				if err != nil {
					break
				}
				out = append(out, rec)
			}
			continue
		}
		classRt, known := lb.registry.ClassFor(typeTag)
		if !known {
			return nil, fmt.Errorf("%w: tag %d at index %d", ErrMissingDecoder, typeTag, i)
		}
		if rt != nil && classRt == rt {
			rec, err := DecodeRecord(i, frame)
			if err != nil {
				break
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetNextOfType scans headers only, starting at fromIndex, and returns the
// first record whose registered class is rt.
func (lb *LogBuffer) GetNextOfType(rt reflect.Type, fromIndex uint64) (Record, bool, error) {
	lb.readerMu.Lock()
	defer lb.readerMu.Unlock()
	if lb.closed {
		return Record{}, false, ErrClosed
	}

	for i := fromIndex; ; i++ {
		frame, ok, err := lb.store.Read(i)
		if err != nil {
			return Record{}, false, fmt.Errorf("read index %d: %w", i, err)
		}
		if !ok {
			return Record{}, false, nil
		}
		typeTag, _, err := PeekHeader(frame)
		if err != nil {
			return Record{}, false, nil
		}
		if typeTag == RawType {
			if rt == nil {
				rec, err := DecodeRecord(i, frame)
				if err != nil {
					return Record{}, false, nil
				}
				return rec, true, nil
			}
			continue
		}
		classRt, known := lb.registry.ClassFor(typeTag)
		if !known {
			return Record{}, false, fmt.Errorf("%w: tag %d at index %d", ErrMissingDecoder, typeTag, i)
		}
		if rt != nil && classRt == rt {
			rec, err := DecodeRecord(i, frame)
			if err != nil {
				return Record{}, false, nil
			}
			return rec, true, nil
		}
	}
}

// latestRecord returns the most recently written record, or ok == false if
// the buffer is empty. Used by the chunked tail to decide reached_tip.
func (lb *LogBuffer) latestRecord() (Record, bool, error) {
	writeIndex, err := lb.store.WriteIndex()
	if err != nil {
		return Record{}, false, err
	}
	if writeIndex == 0 {
		return Record{}, false, nil
	}
	frame, ok, err := lb.store.Read(writeIndex - 1)
	if err != nil || !ok {
		return Record{}, false, err
	}
	rec, err := DecodeRecord(writeIndex-1, frame)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Forward creates the tail if absent, then synchronously runs one delivery
// round and returns its result.
func (lb *LogBuffer) Forward(name string, opts TailOptions) (ForwardResult, error) {
	tail, err := lb.getOrCreateTail(name, opts)
	if err != nil {
		return ForwardResult{}, err
	}
	return tail.runner.RunOnce()
}

// ScheduleFixedDelay creates the tail if absent and runs rounds at delay
// intervals under the shared per-buffer scheduler. Tail creation, scheduler
// creation, and the schedule call itself all happen under tailsMu so two
// concurrent callers registering different new tail names can't each see a
// nil lb.sched and construct a competing Scheduler.
func (lb *LogBuffer) ScheduleFixedDelay(name string, opts TailOptions, delay time.Duration) error {
	lb.tailsMu.Lock()
	defer lb.tailsMu.Unlock()

	if _, ok := lb.tails[name]; ok {
		return nil
	}

	runner, err := newTailRunner(name, lb, opts, lb.cfg)
	if err != nil {
		return err
	}
	t := &registeredTail{runner: runner}
	lb.tails[name] = t

	if lb.sched == nil {
		lb.sched = NewScheduler(lb.logger)
	}
	t.cancel = lb.sched.Schedule(runner.RunOnce, delay)
	return nil
}

// ScheduleChunked creates a chunked tail and schedules it the same way as
// ScheduleFixedDelay.
func (lb *LogBuffer) ScheduleChunked(name string, opts TailOptions, chunkMs int64, delay time.Duration) error {
	opts.ChunkMs = chunkMs
	return lb.ScheduleFixedDelay(name, opts, delay)
}

// Cancel stops the scheduled task for name. The persisted cursor is kept so
// a later re-registration resumes where it left off.
func (lb *LogBuffer) Cancel(name string) {
	lb.tailsMu.Lock()
	t, ok := lb.tails[name]
	if ok {
		delete(lb.tails, name)
	}
	lb.tailsMu.Unlock()
	if !ok {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.runner.Close()
}

// ReadIndex reports the persisted cursor for a tail. If the tail was never
// registered in this process, it opens the cursor store to read it anyway.
func (lb *LogBuffer) ReadIndex(name string) (uint64, error) {
	lb.tailsMu.Lock()
	t, ok := lb.tails[name]
	lb.tailsMu.Unlock()
	if ok {
		return t.runner.CursorIndex()
	}
	cs, err := openCursorStore(lb.cfg.tailDir(name))
	if err != nil {
		return 0, err
	}
	defer cs.Close()
	return cs.Load()
}

func (lb *LogBuffer) getOrCreateTail(name string, opts TailOptions) (*registeredTail, error) {
	t, _, err := lb.getOrCreateTailTracked(name, opts)
	return t, err
}

func (lb *LogBuffer) getOrCreateTailTracked(name string, opts TailOptions) (*registeredTail, bool, error) {
	lb.tailsMu.Lock()
	defer lb.tailsMu.Unlock()

	if t, ok := lb.tails[name]; ok {
		return t, false, nil
	}

	runner, err := newTailRunner(name, lb, opts, lb.cfg)
	if err != nil {
		return nil, false, err
	}
	t := &registeredTail{runner: runner}
	lb.tails[name] = t
	return t, true, nil
}

// Close cancels all scheduled tails, joins the scheduler, and closes the
// store. Idempotent.
func (lb *LogBuffer) Close() error {
	lb.writerMu.Lock()
	if lb.closed {
		lb.writerMu.Unlock()
		return nil
	}
	lb.closed = true
	lb.writerMu.Unlock()

	lb.tailsMu.Lock()
	for _, t := range lb.tails {
		if t.cancel != nil {
			t.cancel()
		}
		t.runner.Close()
	}
	sched := lb.sched
	lb.tailsMu.Unlock()

	if sched != nil {
		sched.Close()
	}

	return lb.store.Close()
}
