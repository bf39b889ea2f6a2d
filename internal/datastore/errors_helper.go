package datastore

import (
	"github.com/tphakala/iconforge/internal/errors"
)

// Sentinel errors for repository operations.
var (
	// ErrGenerationNotFound indicates the requested generation does not exist.
	ErrGenerationNotFound = errors.NewStd("generation not found")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.NewStd("invalid input")
)

// dbError creates a categorized database error with context pairs
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}
