package entry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/roach88/flatdoc/internal/doc"
)

// CreateMany creates docs concurrently on a bounded worker pool
// (see WithWorkers). Each document is created independently, exactly as
// by Create: one failure does not roll back the others.
//
// The result has one entry per input in input order; entries for failed
// documents are nil. The returned error joins every per-document error,
// each prefixed with its input index. Documents not yet started when ctx
// is cancelled fail with the context error.
func (m *Manager) CreateMany(ctx context.Context, docs []map[string]any) ([]doc.Document, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	results := make([]doc.Document, len(docs))
	errs := make([]error, len(docs))

	pool, err := ants.NewPool(m.workers)
	if err != nil {
		return nil, fmt.Errorf("create many: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("create worker panic", "index", i, "panic", r)
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = m.Create(ctx, d)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	var joined []error
	created := 0
	for i, err := range errs {
		if err != nil {
			joined = append(joined, fmt.Errorf("document %d: %w", i, err))
			continue
		}
		created++
	}

	m.logger.Debug("batch created", "created", created, "failed", len(joined))
	return results, errors.Join(joined...)
}
