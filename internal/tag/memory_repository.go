package tag

import (
	"context"
	"sync"

	"github.com/givetag/givetag/internal/ledger"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Tag
}

// NewMemoryRepository constructs an in-memory repository for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Tag)}
}

func (r *memoryRepository) Create(_ context.Context, t Tag) error {
	code := ledger.NormalizeCode(t.Code)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[code]; exists {
		return ErrExists
	}
	t.Code = code
	r.storage[code] = t
	return nil
}

func (r *memoryRepository) Get(_ context.Context, code string) (Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.storage[ledger.NormalizeCode(code)]
	if !ok {
		return Tag{}, ErrNotFound
	}
	return t, nil
}
