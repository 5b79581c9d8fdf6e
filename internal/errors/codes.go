// Package errors provides structured error handling for VaultScope.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Source connector errors
//   - 3XX: Content errors (malformed documents)
//   - 4XX: Index errors
//   - 5XX: Embedding pipeline errors
//   - 6XX: Query errors
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategorySource indicates document source connector errors.
	CategorySource Category = "SOURCE"
	// CategoryContent indicates malformed document content.
	CategoryContent Category = "CONTENT"
	// CategoryIndex indicates vector index and catalog errors.
	CategoryIndex Category = "INDEX"
	// CategoryEmbedding indicates embedding pipeline errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryQuery indicates query-time errors.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the run continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Source errors (200-299)
	ErrCodeSourceUnavailable = "ERR_201_SOURCE_UNAVAILABLE"
	ErrCodeSourceNotFound    = "ERR_202_SOURCE_NOT_FOUND"
	ErrCodeSourceTimeout     = "ERR_203_SOURCE_TIMEOUT"
	ErrCodeSourceUnreadable  = "ERR_204_SOURCE_UNREADABLE"

	// Content errors (300-399)
	ErrCodeMalformedFrontmatter = "ERR_301_MALFORMED_FRONTMATTER"
	ErrCodeMalformedMarkup      = "ERR_302_MALFORMED_MARKUP"

	// Index errors (400-499)
	ErrCodeIndexUnavailable  = "ERR_401_INDEX_UNAVAILABLE"
	ErrCodeIndexCorrupt      = "ERR_402_INDEX_CORRUPT"
	ErrCodeIndexLocked       = "ERR_403_INDEX_LOCKED"
	ErrCodeDimensionMismatch = "ERR_404_DIMENSION_MISMATCH"

	// Embedding errors (500-599)
	ErrCodeEmbeddingFailed    = "ERR_501_EMBEDDING_FAILED"
	ErrCodeEmbeddingIntegrity = "ERR_502_EMBEDDING_INTEGRITY"

	// Query errors (600-699)
	ErrCodeQueryFailed  = "ERR_601_QUERY_FAILED"
	ErrCodeQueryInvalid = "ERR_602_QUERY_INVALID"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode derives the category from the code's number range.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategorySource
	case '3':
		return CategoryContent
	case '4':
		return CategoryIndex
	case '5':
		return CategoryEmbedding
	case '6':
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the default severity for a code.
// Embedding integrity failures are fatal: every downstream relevance
// score is meaningless once the vectors are degenerate.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEmbeddingIntegrity, ErrCodeDimensionMismatch, ErrCodeIndexCorrupt:
		return SeverityFatal
	case ErrCodeMalformedFrontmatter, ErrCodeMalformedMarkup:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may
// be retried. Only transient source and embedding transport failures are.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSourceUnavailable, ErrCodeSourceTimeout, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
