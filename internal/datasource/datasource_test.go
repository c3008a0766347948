package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lodestone-kb/lodestone/internal/errors"
	"github.com/lodestone-kb/lodestone/internal/node"
)

// stubSource is a minimal datasource for registry tests.
type stubSource struct {
	name string
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) VectorSearch(context.Context, []float32, int, node.Filter) ([]*node.Scored, error) {
	return nil, nil
}
func (s *stubSource) ListAllNodes(context.Context) ([]*node.TextNode, error) { return nil, nil }
func (s *stubSource) Close() error                                           { return nil }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubSource{name: "docs"}))

	ds, err := r.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", ds.Name())

	_, err = r.Get("missing")
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeDatasourceNotFound, appErr.Code)
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubSource{name: "docs"}))

	err := r.Register(&stubSource{name: "docs"})
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, appErr.Code)
	assert.Equal(t, "docs", appErr.Details["name"])
}

func TestRegistry_ErrorsHaveNoCause(t *testing.T) {
	// Registry errors originate here, not from a wrapped downstream failure.
	r := NewRegistry()

	_, _, err := r.Resolve(nil)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.NoError(t, appErr.Unwrap())

	require.NoError(t, r.Register(&stubSource{name: "docs"}))
	_, err = r.Get("missing")
	require.ErrorAs(t, err, &appErr)
	assert.NoError(t, appErr.Unwrap())
}

func TestRegistry_ResolveDefaultsToAll(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubSource{name: "a"}))
	require.NoError(t, r.Register(&stubSource{name: "b"}))

	resolved, missing, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
	require.Len(t, resolved, 2)
	assert.Equal(t, "a", resolved[0].Name())
	assert.Equal(t, "b", resolved[1].Name())
}

func TestRegistry_ResolveSkipsMissing(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubSource{name: "a"}))

	resolved, missing, err := r.Resolve([]string{"a", "ghost"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, []string{"ghost"}, missing)
}

func TestRegistry_ResolveEmptyRegistry(t *testing.T) {
	r := NewRegistry()

	_, _, err := r.Resolve(nil)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeNoDatasource, appErr.Code)
}
