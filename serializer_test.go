package logbuffer

import (
	"reflect"
	"testing"
)

type widgetA struct {
	Name string
}

type widgetB struct {
	Count int
}

func TestRegistry_JSONRoundTrip(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterJSON(123, widgetA{}); err != nil {
		t.Fatal(err)
	}

	tag, data, err := reg.Encode(widgetA{Name: "spool"})
	if err != nil {
		t.Fatal(err)
	}
	if tag != 123 {
		t.Errorf("expected tag 123, got %d", tag)
	}

	decoded, err := reg.Decode(tag, data)
	if err != nil {
		t.Fatal(err)
	}
	w, ok := decoded.(widgetA)
	if !ok {
		t.Fatalf("expected widgetA, got %T", decoded)
	}
	if w.Name != "spool" {
		t.Errorf("expected Name spool, got %q", w.Name)
	}
}

func TestRegistry_GobRoundTrip(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterGob(7, widgetB{}); err != nil {
		t.Fatal(err)
	}

	tag, data, err := reg.Encode(widgetB{Count: 9})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := reg.Decode(tag, data)
	if err != nil {
		t.Fatal(err)
	}
	w, ok := decoded.(widgetB)
	if !ok {
		t.Fatalf("expected widgetB, got %T", decoded)
	}
	if w.Count != 9 {
		t.Errorf("expected Count 9, got %d", w.Count)
	}
}

func TestRegistry_EncodeUnregisteredType(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Encode(widgetA{})
	if err == nil {
		t.Fatal("expected ErrNoEncoder for unregistered type")
	}
}

func TestRegistry_DecodeUnregisteredTag(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Decode(999, nil)
	if err == nil {
		t.Fatal("expected ErrNoDecoder for unregistered tag")
	}
}

func TestRegistry_RejectsReservedTagZero(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(0, reflect.TypeOf(widgetA{}), nil, nil)
	if err == nil {
		t.Fatal("expected error registering tag 0")
	}
}

func TestRegistry_ClassForAndTypeFor(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterJSON(55, widgetA{}); err != nil {
		t.Fatal(err)
	}
	rt, ok := reg.ClassFor(55)
	if !ok || rt != reflect.TypeOf(widgetA{}) {
		t.Fatalf("expected widgetA type for tag 55")
	}
	tag, ok := reg.TypeFor(reflect.TypeOf(widgetA{}))
	if !ok || tag != 55 {
		t.Fatalf("expected tag 55 for widgetA type")
	}
}
