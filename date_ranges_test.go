package logbuffer

import "testing"

func TestDateRanges_IndexBoundsAndStartTime(t *testing.T) {
	dr := NewDateRanges(Hourly)

	hourMs := int64(60 * 60 * 1000)
	timeMs := 3 * hourMs
	fromIndex, toIndex := dr.IndexBounds(timeMs)

	if fromIndex >= toIndex {
		t.Fatalf("expected fromIndex < toIndex, got %d, %d", fromIndex, toIndex)
	}

	start := dr.StartTime(fromIndex)
	if start != timeMs {
		t.Errorf("expected interval start %d, got %d", timeMs, start)
	}
}

func TestDateRanges_FormatStartDaily(t *testing.T) {
	dr := NewDateRanges(Daily)
	fromIndex, _ := dr.IndexBounds(0)
	s := dr.FormatStart(fromIndex)
	if s == "" {
		t.Fatal("expected non-empty formatted date")
	}
}

func TestDateRanges_MillisecondlyIsAdditive(t *testing.T) {
	dr := NewDateRanges(Millisecondly)
	if dr.IntervalMs() != 1 {
		t.Errorf("expected 1ms interval, got %d", dr.IntervalMs())
	}
	fromIndex, toIndex := dr.IndexBounds(1500)
	if fromIndex > toIndex {
		t.Errorf("expected fromIndex <= toIndex, got %d, %d", fromIndex, toIndex)
	}
}

func TestDateRanges_IndexesPerIntervalScalesWithInterval(t *testing.T) {
	secondly := NewDateRanges(Secondly)
	minutely := NewDateRanges(Minutely)
	if minutely.IntervalMs() <= secondly.IntervalMs() {
		t.Fatal("expected minutely interval to exceed secondly interval")
	}
	if secondly.indexesPerInterval != 1000*maxIndexPerMs || minutely.indexesPerInterval != 60*1000*maxIndexPerMs {
		t.Errorf("expected indexesPerInterval of %d and %d, got %d and %d",
			1000*maxIndexPerMs, 60*1000*maxIndexPerMs, secondly.indexesPerInterval, minutely.indexesPerInterval)
	}
}
