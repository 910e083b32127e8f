package logbuffer

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	payload := []byte("hello world")
	frame := EncodeRecord(42, 1700000000000, payload)

	rec, err := DecodeRecord(7, frame)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Index != 7 {
		t.Errorf("expected index 7, got %d", rec.Index)
	}
	if rec.Type != 42 {
		t.Errorf("expected type 42, got %d", rec.Type)
	}
	if rec.Timestamp != 1700000000000 {
		t.Errorf("expected timestamp 1700000000000, got %d", rec.Timestamp)
	}
	if !bytes.Equal(rec.Payload, payload) {
		t.Errorf("expected payload %q, got %q", payload, rec.Payload)
	}
}

func TestEncodeDecodeEmptyPayload(t *testing.T) {
	frame := EncodeRecord(RawType, 5, nil)
	rec, err := DecodeRecord(0, frame)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Payload) != 0 {
		t.Errorf("expected empty payload, got %q", rec.Payload)
	}
}

func TestDecodeRecordCorruptTooShort(t *testing.T) {
	_, err := DecodeRecord(0, []byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for undersized frame")
	}
}

func TestDecodeRecordCorruptLengthMismatch(t *testing.T) {
	frame := EncodeRecord(1, 2, []byte("abcdef"))
	truncated := frame[:len(frame)-3]
	_, err := DecodeRecord(0, truncated)
	if err == nil {
		t.Fatal("expected error for length-prefix mismatch")
	}
}

func TestPeekHeaderDoesNotTouchPayload(t *testing.T) {
	frame := EncodeRecord(99, 123456, []byte("payload data"))
	typeTag, timestampMs, err := PeekHeader(frame[:16])
	if err != nil {
		t.Fatal(err)
	}
	if typeTag != 99 {
		t.Errorf("expected type 99, got %d", typeTag)
	}
	if timestampMs != 123456 {
		t.Errorf("expected timestamp 123456, got %d", timestampMs)
	}
}
