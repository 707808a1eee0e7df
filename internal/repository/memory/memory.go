// Package memory holds in-process implementations of the repository
// interfaces. They back local development when no DATABASE_URL is set and
// every service and handler test.
package memory

import (
	"context"
	"sync"

	"github.com/lalith-99/brokerguard/internal/models"
)

type txKey struct{}

// Transactor serializes transactions with a single mutex. There is no
// rollback: writes made before fn fails stay written, so callers order their
// checks before their writes.
type Transactor struct {
	mu sync.Mutex
}

func NewTransactor() *Transactor {
	return &Transactor{}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

func paginate[T any](items []T, p models.Pagination) []T {
	start := p.Offset()
	if start < 0 || start >= len(items) || p.PerPage <= 0 {
		return []T{}
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func ptr[T any](v T) *T { return &v }
