// Package avatar turns received display-picture data into cached
// thumbnails on a bounded number of goroutines.
package avatar

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Result is the outcome of processing one picture.
type Result struct {
	ID        string
	Thumbnail []byte
	Err       error
}

// Pool bounds concurrent picture processing.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most workers conversions at a time.
func NewPool(workers int64, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(workers),
		size:   ThumbnailSize,
		logger: logger.Named("avatar"),
	}
}

// Process converts data in the background and calls done with the result.
// Process itself never blocks; queued work waits for a free slot or ctx.
func (p *Pool) Process(ctx context.Context, id string, data []byte, done func(Result)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			done(Result{ID: id, Err: err})
			return
		}
		defer p.sem.Release(1)

		thumb, err := Thumbnail(data, p.size)
		if err != nil {
			p.logger.Warn("display picture rejected", zap.String("contact", id), zap.Error(err))
		}
		done(Result{ID: id, Thumbnail: thumb, Err: err})
	}()
}

// Wait blocks until every submitted picture has been processed.
func (p *Pool) Wait() {
	p.wg.Wait()
}
