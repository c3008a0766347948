package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassification(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeNoDatasource, CategoryConfig, SeverityError, false},
		{ErrCodeDatasourceNotFound, CategoryDatasource, SeverityWarning, false},
		{ErrCodeDatasourceUnreachable, CategoryDatasource, SeverityWarning, true},
		{ErrCodeEmbeddingFailed, CategoryProvider, SeverityWarning, true},
		{ErrCodeInvalidQuery, CategoryValidation, SeverityError, false},
		{ErrCodeSearchFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.retryable, e.Retryable)
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("boom")
	e := New(ErrCodeSearchFailed, "search failed", cause)

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "[ERR_502_SEARCH_FAILED] search failed", e.Error())
}

func TestError_IsByCode(t *testing.T) {
	e := Wrap(ErrCodeDatasourceNotFound, stderrors.New("missing"))
	require.NotNil(t, e)

	target := &Error{Code: ErrCodeDatasourceNotFound}
	assert.ErrorIs(t, e, target)

	other := &Error{Code: ErrCodeRerankFailed}
	assert.NotErrorIs(t, e, other)
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable_ChainWalk(t *testing.T) {
	inner := New(ErrCodeProviderTimeout, "timeout", nil)
	wrapped := fmt.Errorf("stage failed: %w", inner)

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetail(t *testing.T) {
	e := New(ErrCodeDatasourceNotFound, "missing", nil).
		WithDetail("datasource", "docs").
		WithDetail("mode", "hybrid")

	assert.Equal(t, "docs", e.Details["datasource"])
	assert.Equal(t, "hybrid", e.Details["mode"])
}
