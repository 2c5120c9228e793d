package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/rl-arena/doubles-rating/internal/models"
)

// ErrAppendConflict means another writer already took the sequence number the
// caller tried to append at. The caller should catch up and retry.
var ErrAppendConflict = errors.New("append conflict: sequence number already taken")

// MatchStore is the append-only match history.
type MatchStore interface {
	// Append stores rec at rec.Seq, which must be exactly one past the current head.
	Append(ctx context.Context, rec *models.MatchRecord) error
	// List returns the full history in append order.
	List(ctx context.Context) ([]models.MatchRecord, error)
	// ListSince returns records with Seq > afterSeq in append order.
	ListSince(ctx context.Context, afterSeq int64) ([]models.MatchRecord, error)
}

// MemoryMatchRepository keeps the history in process memory.
type MemoryMatchRepository struct {
	mu      sync.RWMutex
	records []models.MatchRecord
}

func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{}
}

func (r *MemoryMatchRepository) Append(ctx context.Context, rec *models.MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Seq != int64(len(r.records))+1 {
		return ErrAppendConflict
	}
	r.records = append(r.records, rec.Clone())
	return nil
}

func (r *MemoryMatchRepository) List(ctx context.Context) ([]models.MatchRecord, error) {
	return r.ListSince(ctx, 0)
}

func (r *MemoryMatchRepository) ListSince(ctx context.Context, afterSeq int64) ([]models.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(r.records)) {
		return nil, nil
	}
	out := make([]models.MatchRecord, 0, int64(len(r.records))-afterSeq)
	for _, rec := range r.records[afterSeq:] {
		out = append(out, rec.Clone())
	}
	return out, nil
}
