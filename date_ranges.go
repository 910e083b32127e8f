package logbuffer

import (
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"
)

// maxIndexPerMs is the reserved (not actual) index capacity scaling factor
// used only to derive indexesPerInterval for the nominal index<->time
// mapping below. It does not constrain actual append rates.
const maxIndexPerMs = 1000

// DateRangeUnit identifies one of the interval granularities a DateRanges
// can be built for.
type DateRangeUnit int

const (
	// Secondly buckets time into 1-second intervals.
	Secondly DateRangeUnit = iota
	// Minutely buckets time into 1-minute intervals.
	Minutely
	// Hourly buckets time into 1-hour intervals.
	Hourly
	// Daily buckets time into 1-day intervals.
	Daily
	// Millisecondly buckets time into 1-millisecond intervals, for callers
	// that need sub-second alignment or formatting.
	Millisecondly
)

// DateRanges is a pure configuration object that maps wall-clock intervals
// to contiguous nominal index ranges, and back. The chunked tail uses it to
// label each window in its debug log (the window itself is aligned on
// ChunkMs); it never replaces an actual positional or time-range scan for
// correctness.
type DateRanges struct {
	intervalMs         int64
	indexesPerInterval uint64
	layout             string
	withZone           bool
}

func newDateRanges(intervalMs int64, layout string, withZone bool) DateRanges {
	return DateRanges{
		intervalMs:         intervalMs,
		indexesPerInterval: uint64(intervalMs) * maxIndexPerMs,
		layout:             layout,
		withZone:           withZone,
	}
}

// NewDateRanges builds a DateRanges for the given unit.
func NewDateRanges(unit DateRangeUnit) DateRanges {
	switch unit {
	case Secondly:
		return newDateRanges(int64(time.Second/time.Millisecond), "%Y-%m-%d-%H-%M-%S", true)
	case Minutely:
		return newDateRanges(int64(time.Minute/time.Millisecond), "%Y-%m-%d-%H-%M", true)
	case Hourly:
		return newDateRanges(int64(time.Hour/time.Millisecond), "%Y-%m-%d-%H", true)
	case Daily:
		return newDateRanges(int64(24*time.Hour/time.Millisecond), "%Y-%m-%d", false)
	case Millisecondly:
		return newDateRanges(1, "%Y-%m-%dT%H:%M:%S", true)
	default:
		return newDateRanges(int64(time.Hour/time.Millisecond), "%Y-%m-%d-%H", true)
	}
}

// IntervalMs returns the interval, in milliseconds, this DateRanges buckets by.
func (d DateRanges) IntervalMs() int64 { return d.intervalMs }

// IndexBounds returns the nominal [fromIndex, toIndex] that the interval
// containing timeMs maps to. These are estimates used for bucketing and
// alignment, not positions to read directly from a SegmentedStore.
func (d DateRanges) IndexBounds(timeMs int64) (fromIndex, toIndex uint64) {
	from := (timeMs / d.intervalMs) * int64(d.indexesPerInterval)
	to := ((timeMs+d.intervalMs)/d.intervalMs)*int64(d.indexesPerInterval) - 1
	return uint64(from), uint64(to)
}

// StartTime returns the start, in epoch milliseconds, of the interval that
// index nominally belongs to.
func (d DateRanges) StartTime(index uint64) int64 {
	firstIndexOfInterval := index - (index % d.indexesPerInterval)
	return int64(firstIndexOfInterval/d.indexesPerInterval) * d.intervalMs
}

// FormatStart formats, in GMT, the start time of the interval index belongs
// to, using the layout appropriate for this DateRanges' unit.
func (d DateRanges) FormatStart(index uint64) string {
	startMs := d.StartTime(index)
	t := time.UnixMilli(startMs).UTC()
	s := strftime.Format(d.layout, t)
	if d.intervalMs == 1 {
		s = fmt.Sprintf("%s.%03d", s, ((startMs%1000)+1000)%1000)
	}
	if d.withZone {
		s += "-GMT"
	}
	return s
}
