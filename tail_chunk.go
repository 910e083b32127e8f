package logbuffer

import "time"

// runOnceChunked delivers records in fixed wall-clock windows aligned on
// ChunkMs boundaries rather than as soon as they land, so a subscriber sees
// complete windows, not partial ones.
func (t *TailRunner) runOnceChunked() (ForwardResult, error) {
	chunkMs := t.opts.ChunkMs

	from, err := t.cursor.Load()
	if err != nil {
		return ForwardResult{}, err
	}

	latest, hasLatest, err := t.lb.latestRecord()
	if err != nil {
		return ForwardResult{}, err
	}
	if !hasLatest {
		return ForwardResult{}, nil
	}

	writeIndex, err := t.lb.WriteIndex()
	if err != nil {
		return ForwardResult{}, err
	}

	current, err := t.selectRange(from, writeIndex)
	if err != nil {
		return ForwardResult{}, err
	}
	if len(current) == 0 {
		return ForwardResult{}, nil
	}

	firstTs := current[0].Timestamp
	fixedFrom := firstTs - (firstTs % chunkMs)
	fixedTo := fixedFrom + chunkMs - 1

	if fixedTo > time.Now().UnixMilli() {
		// Window not closed yet; do not process an incomplete window.
		return ForwardResult{}, nil
	}

	windowIndex, _ := t.dateRanges.IndexBounds(fixedFrom)
	t.logger.Debug("chunked tail window", "window_start", t.dateRanges.FormatStart(windowIndex), "fixed_from_ms", fixedFrom, "fixed_to_ms", fixedTo)

	batch, err := t.selectForwardRange(from, fixedFrom, fixedTo)
	if err != nil {
		return ForwardResult{}, err
	}

	var newCursor uint64
	if len(batch) > 0 {
		newCursor = batch[len(batch)-1].Index + 1
	} else {
		// Batch empty but window closed: advance past the window by
		// consuming up to the first record with timestamp > fixedTo.
		newCursor = from
		for _, rec := range current {
			if rec.Timestamp > fixedTo {
				break
			}
			newCursor = rec.Index + 1
		}
	}

	if err := t.opts.Tail(batch); err != nil {
		t.logger.Warn("chunked tail round failed, cursor not advanced", "from", from, "window", []int64{fixedFrom, fixedTo}, "error", err)
		return ForwardResult{}, newTailFailure(t.name, err)
	}

	if err := t.cursor.Store(newCursor); err != nil {
		return ForwardResult{}, err
	}

	reachedTip := len(batch) > 0 && batch[len(batch)-1].Timestamp >= latest.Timestamp
	return ForwardResult{ReachedTip: reachedTip}, nil
}
