package logbuffer

import (
	"os"
	"testing"
)

func TestFileStore_AppendAndRead(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "logbuffer-filestore-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := OpenFileStore(tmpDir, 32767, false)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for i, payload := range [][]byte{[]byte("x"), []byte("y"), []byte("z")} {
		frame := EncodeRecord(RawType, int64(1000+i), payload)
		index, err := store.Append(frame)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if index != uint64(i) {
			t.Fatalf("expected index %d, got %d", i, index)
		}
	}

	writeIndex, err := store.WriteIndex()
	if err != nil {
		t.Fatal(err)
	}
	if writeIndex != 3 {
		t.Errorf("expected write index 3, got %d", writeIndex)
	}

	frame, ok, err := store.Read(2)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected record at index 2")
	}
	rec, err := DecodeRecord(2, frame)
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Payload) != "z" {
		t.Errorf("expected payload z, got %q", rec.Payload)
	}

	_, ok, err = store.Read(50)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no record beyond write index")
	}
}

func TestFileStore_RollsSegmentsAndReopens(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "logbuffer-filestore-roll-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	const logsPerFile = 4
	store, err := OpenFileStore(tmpDir, logsPerFile, false)
	if err != nil {
		t.Fatal(err)
	}

	const total = 10
	for i := 0; i < total; i++ {
		if _, err := store.Append(EncodeRecord(RawType, int64(i), []byte("payload"))); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	segments, err := listSegments(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) < 3 {
		t.Errorf("expected at least 3 rolled segments for %d records at %d per file, got %d", total, logsPerFile, len(segments))
	}

	reopened, err := OpenFileStore(tmpDir, logsPerFile, false)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	writeIndex, err := reopened.WriteIndex()
	if err != nil {
		t.Fatal(err)
	}
	if writeIndex != total {
		t.Errorf("expected write index %d after reopen, got %d", total, writeIndex)
	}

	for i := 0; i < total; i++ {
		frame, ok, err := reopened.Read(uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("expected record at index %d after reopen", i)
		}
		rec, err := DecodeRecord(uint64(i), frame)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Timestamp != int64(i) {
			t.Errorf("record %d: expected timestamp %d, got %d", i, i, rec.Timestamp)
		}
	}
}

func TestFileStore_RecoversFromTruncatedFinalFrame(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "logbuffer-filestore-trunc-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := OpenFileStore(tmpDir, 32767, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Append(EncodeRecord(RawType, int64(i), []byte("ok"))); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	segPath := (&FileStore{dir: tmpDir}).segmentPath(0)
	f, err := os.OpenFile(segPath, os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a crash mid-append: write a header claiming a large payload
	// that was never actually fully written.
	partial := EncodeRecord(RawType, 999, make([]byte, 100))
	if _, err := f.Write(partial[:len(partial)-50]); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFileStore(tmpDir, 32767, false)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	writeIndex, err := reopened.WriteIndex()
	if err != nil {
		t.Fatal(err)
	}
	if writeIndex != 3 {
		t.Errorf("expected the partially written frame to be ignored, write index 3, got %d", writeIndex)
	}
}

func TestFileStore_AppendAfterClose(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "logbuffer-filestore-closed-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := OpenFileStore(tmpDir, 32767, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	if _, err := store.Append(EncodeRecord(RawType, 1, nil)); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
