package rerank

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyReranker_LoadsOnce(t *testing.T) {
	var loads atomic.Int32
	l := NewLazyReranker(func(_ context.Context) (Reranker, error) {
		loads.Add(1)
		return &NoOpReranker{}, nil
	}, nil)

	for i := 0; i < 3; i++ {
		_, err := l.Rerank(context.Background(), "q", []string{"a"}, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, l.Available(context.Background()))
}

func TestLazyReranker_CachesLoadFailure(t *testing.T) {
	var loads atomic.Int32
	l := NewLazyReranker(func(_ context.Context) (Reranker, error) {
		loads.Add(1)
		return nil, errors.New("model download failed")
	}, nil)

	// A failed load surfaces as ErrUnavailable without reloading per call.
	for i := 0; i < 3; i++ {
		_, err := l.Rerank(context.Background(), "q", []string{"a", "b"}, 0)
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.Error(t, l.LoadErr())
	assert.False(t, l.Available(context.Background()))
}

func TestLazyReranker_ResetRetriesLoad(t *testing.T) {
	var loads atomic.Int32
	l := NewLazyReranker(func(_ context.Context) (Reranker, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("first load fails")
		}
		return &NoOpReranker{}, nil
	}, nil)

	_, err := l.Rerank(context.Background(), "q", []string{"a"}, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Error(t, l.LoadErr())

	l.Reset()

	_, err = l.Rerank(context.Background(), "q", []string{"a"}, 0)
	require.NoError(t, err)
	assert.NoError(t, l.LoadErr())
	assert.Equal(t, int32(2), loads.Load())
}

// failingReranker loads fine but errors on every inference call.
type failingReranker struct{}

func (f *failingReranker) Rerank(context.Context, string, []string, int) ([]Result, error) {
	return nil, errors.New("inference error")
}
func (f *failingReranker) Available(context.Context) bool { return true }
func (f *failingReranker) Close() error                   { return nil }

func TestLazyReranker_InferenceErrorPropagates(t *testing.T) {
	l := NewLazyReranker(func(_ context.Context) (Reranker, error) {
		return &failingReranker{}, nil
	}, nil)

	_, err := l.Rerank(context.Background(), "q", []string{"x", "y"}, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}
