package rerank

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrUnavailable reports that no reranker model is loaded. Callers treat it
// as a valid operating mode and keep stage-native scores.
var ErrUnavailable = errors.New("reranker unavailable")

// LoadFunc constructs the underlying reranker. Called at most once per
// LazyReranker lifetime until Reset.
type LoadFunc func(ctx context.Context) (Reranker, error)

// LazyReranker defers model loading until the first Rerank call. A failed
// load is cached: subsequent calls return ErrUnavailable without retrying
// the expensive load. Reset clears the cached failure so the next call
// attempts the load again.
type LazyReranker struct {
	load   LoadFunc
	logger *slog.Logger

	mu      sync.Mutex
	inner   Reranker
	tried   bool
	loadErr error
}

var _ Reranker = (*LazyReranker)(nil)

// NewLazyReranker creates a lazily loaded reranker.
func NewLazyReranker(load LoadFunc, logger *slog.Logger) *LazyReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyReranker{
		load:   load,
		logger: logger,
	}
}

// get returns the loaded reranker, or nil if loading failed previously.
func (l *LazyReranker) get(ctx context.Context) Reranker {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.tried {
		l.tried = true
		inner, err := l.load(ctx)
		if err != nil {
			l.loadErr = err
			l.logger.Warn("reranker load failed, retrievals keep stage-native scores",
				slog.String("error", err.Error()))
		} else {
			l.inner = inner
		}
	}

	return l.inner
}

// Rerank delegates to the loaded reranker. When the load has failed it
// returns ErrUnavailable so callers keep their stage-native ranking.
func (l *LazyReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	inner := l.get(ctx)
	if inner == nil {
		return nil, ErrUnavailable
	}
	return inner.Rerank(ctx, query, documents, topK)
}

// Available reports whether a loaded reranker is ready. It never triggers
// a load.
func (l *LazyReranker) Available(ctx context.Context) bool {
	l.mu.Lock()
	inner := l.inner
	l.mu.Unlock()

	return inner != nil && inner.Available(ctx)
}

// LoadErr returns the cached load failure, if any.
func (l *LazyReranker) LoadErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr
}

// Reset clears the cached load state so the next Rerank attempts the load
// again. Any loaded reranker is closed.
func (l *LazyReranker) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inner != nil {
		_ = l.inner.Close()
	}
	l.inner = nil
	l.tried = false
	l.loadErr = nil
}

// Close releases the loaded reranker, if any.
func (l *LazyReranker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inner == nil {
		return nil
	}
	err := l.inner.Close()
	l.inner = nil
	return err
}
