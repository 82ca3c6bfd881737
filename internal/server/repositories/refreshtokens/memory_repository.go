package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/dmitrijs2005/brainbox/internal/server/models"
)

// MemoryRepository keeps records in a map. Records do not survive a restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]models.RefreshToken
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]models.RefreshToken), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, hash string, expiresAt time.Time) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[hash]; ok {
		return nil, common.ErrorAlreadyExists
	}
	rec := models.RefreshToken{Hash: hash, ExpiresAt: expiresAt.UTC(), CreatedAt: r.now().UTC()}
	r.records[hash] = rec
	return &rec, nil
}

func (r *MemoryRepository) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[hash]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (r *MemoryRepository) DeleteByHash(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.records, hash)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for h, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, h)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[oldHash]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := r.records[next.Hash]; ok && next.Hash != oldHash {
		return common.ErrorAlreadyExists
	}

	rec := *next
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	delete(r.records, oldHash)
	r.records[rec.Hash] = rec
	return nil
}

// Len reports the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
