package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sos-villages/signalement/internal/shared/errors"
)

// MemoryStore is a FileStore kept in process memory, for tests and STORE=memory
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	failPut bool
}

type memoryObject struct {
	meta Object
	data []byte
}

// NewMemoryStore creates an empty in-memory file store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores a copy of the payload
func (s *MemoryStore) Put(_ context.Context, key string, up Upload) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPut {
		return Object{}, errors.Wrap(fmt.Errorf("store unavailable"), "failed to upload file")
	}
	data, err := io.ReadAll(up.Body)
	if err != nil {
		return Object{}, errors.Wrap(err, "failed to read upload")
	}

	meta := Object{Key: key, FileName: up.FileName, MimeType: up.MimeType, Size: int64(len(data))}
	s.objects[key] = memoryObject{meta: meta, data: data}
	return meta, nil
}

// Open returns the payload stored at key
func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, errors.NotFound("file", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Remove deletes the object at key
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Keys returns the stored keys
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// SetFailPut makes Put fail
func (s *MemoryStore) SetFailPut(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = fail
}
