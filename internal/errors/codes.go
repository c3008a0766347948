// Package errors provides structured error handling for Lodestone.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Datasource errors
//   - 3XX: Downstream provider errors (embedding, LLM, reranker)
//   - 4XX: Validation errors
//   - 5XX: Internal pipeline errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryDatasource indicates datasource access errors.
	CategoryDatasource Category = "DATASOURCE"
	// CategoryProvider indicates downstream provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityError indicates the operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeNoDatasource   = "ERR_103_NO_DATASOURCE"
	ErrCodeNoEmbedder     = "ERR_104_NO_EMBEDDER"

	// Datasource errors (200-299)
	ErrCodeDatasourceNotFound    = "ERR_201_DATASOURCE_NOT_FOUND"
	ErrCodeDatasourceUnreachable = "ERR_202_DATASOURCE_UNREACHABLE"
	ErrCodeHybridUnsupported     = "ERR_203_HYBRID_UNSUPPORTED"

	// Provider errors (300-399)
	ErrCodeEmbeddingFailed = "ERR_301_EMBEDDING_FAILED"
	ErrCodeRewriteFailed   = "ERR_302_REWRITE_FAILED"
	ErrCodeRerankFailed    = "ERR_303_RERANK_FAILED"
	ErrCodeProviderTimeout = "ERR_304_PROVIDER_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidQuery = "ERR_401_INVALID_QUERY"
	ErrCodeInvalidTopK  = "ERR_402_INVALID_TOPK"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_503_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryDatasource
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from the code. Datasource and provider
// failures degrade rather than abort, so they report as warnings.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryDatasource, CategoryProvider:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether the operation behind the code may succeed
// on retry. Only transient downstream failures qualify.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeDatasourceUnreachable, ErrCodeEmbeddingFailed,
		ErrCodeRerankFailed, ErrCodeProviderTimeout:
		return true
	default:
		return false
	}
}
