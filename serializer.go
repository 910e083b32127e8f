package logbuffer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// SerializerRegistry maps a non-zero type tag to an encoder/decoder pair for
// a user type. LogBuffer only ever consumes this contract; encoding schemes
// beyond the raw-bytes path are entirely the caller's choice.
type SerializerRegistry interface {
	// Encode resolves v's registered type tag and encodes v to bytes.
	// Returns ErrNoEncoder if v's type was never registered.
	Encode(v any) (typeTag uint64, data []byte, err error)

	// Decode decodes data according to the codec registered under typeTag.
	// Returns ErrNoDecoder if typeTag was never registered.
	Decode(typeTag uint64, data []byte) (any, error)

	// ClassFor reports the reflect.Type registered under typeTag, if any.
	ClassFor(typeTag uint64) (reflect.Type, bool)

	// TypeFor reports the type tag registered for rt, if any.
	TypeFor(rt reflect.Type) (uint64, bool)
}

type serializerEntry struct {
	rt     reflect.Type
	encode func(v any) ([]byte, error)
	decode func(data []byte) (any, error)
}

// Registry is the default SerializerRegistry: a tag-keyed map populated by
// Register/RegisterJSON/RegisterGob (LogBuffer.RegisterSerializer calls
// Register).
type Registry struct {
	mu     sync.RWMutex
	byTag  map[uint64]serializerEntry
	byType map[reflect.Type]uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:  make(map[uint64]serializerEntry),
		byType: make(map[reflect.Type]uint64),
	}
}

// Register binds typeTag to rt with explicit encode/decode functions.
// typeTag must be non-zero: 0 is reserved for raw, undecoded payloads.
func (r *Registry) Register(typeTag uint64, rt reflect.Type, encode func(v any) ([]byte, error), decode func(data []byte) (any, error)) error {
	if typeTag == RawType {
		return fmt.Errorf("%w: type tag 0 is reserved for raw records", ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTag[typeTag] = serializerEntry{rt: rt, encode: encode, decode: decode}
	r.byType[rt] = typeTag
	return nil
}

// RegisterJSON binds typeTag to sample's type using encoding/json.
func (r *Registry) RegisterJSON(typeTag uint64, sample any) error {
	rt := reflect.TypeOf(sample)
	return r.Register(typeTag, rt,
		func(v any) ([]byte, error) { return json.Marshal(v) },
		func(data []byte) (any, error) {
			v := reflect.New(rt).Interface()
			if err := json.Unmarshal(data, v); err != nil {
				return nil, err
			}
			return reflect.ValueOf(v).Elem().Interface(), nil
		})
}

// RegisterGob binds typeTag to sample's type using encoding/gob.
func (r *Registry) RegisterGob(typeTag uint64, sample any) error {
	rt := reflect.TypeOf(sample)
	return r.Register(typeTag, rt,
		func(v any) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		func(data []byte) (any, error) {
			v := reflect.New(rt).Interface()
			if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
				return nil, err
			}
			return reflect.ValueOf(v).Elem().Interface(), nil
		})
}

func (r *Registry) Encode(v any) (uint64, []byte, error) {
	rt := reflect.TypeOf(v)
	r.mu.RLock()
	tag, ok := r.byType[rt]
	entry := r.byTag[tag]
	r.mu.RUnlock()
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrNoEncoder, rt)
	}
	data, err := entry.encode(v)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", rt, err)
	}
	return tag, data, nil
}

func (r *Registry) Decode(typeTag uint64, data []byte) (any, error) {
	r.mu.RLock()
	entry, ok := r.byTag[typeTag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrNoDecoder, typeTag)
	}
	v, err := entry.decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode tag %d: %w", typeTag, err)
	}
	return v, nil
}

func (r *Registry) ClassFor(typeTag uint64) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byTag[typeTag]
	if !ok {
		return nil, false
	}
	return entry.rt, true
}

func (r *Registry) TypeFor(rt reflect.Type) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.byType[rt]
	return tag, ok
}
