package assets

import (
	"context"
	"sync"

	"confirmit/internal/scan/models"
	"confirmit/pkg/platform/sentinel"
	"confirmit/pkg/requestcontext"
)

// MemoryStore keeps assets in process. URLs use the memory:// scheme and are
// only meaningful to analyzers running in the same process.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	contentType string
	data        []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]object)}
}

func (s *MemoryStore) Upload(ctx context.Context, name, contentType string, data []byte) (models.AssetRef, error) {
	if err := ctx.Err(); err != nil {
		return models.AssetRef{}, err
	}
	key := ObjectKey(name, requestcontext.Now(ctx))
	s.mu.Lock()
	s.objects[key] = object{contentType: contentTypeOrDefault(contentType), data: append([]byte(nil), data...)}
	s.mu.Unlock()
	return models.AssetRef{URL: "memory://" + key, AssetID: key}, nil
}

// Get returns a stored asset and its content type.
func (s *MemoryStore) Get(key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", sentinel.ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}
