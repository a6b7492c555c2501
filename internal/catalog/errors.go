package catalog

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for common catalog conditions (§7).
var (
	// ErrNotFound indicates the requested id/name has no catalog row.
	ErrNotFound = errors.New("not found")

	// ErrVersionUnknown indicates a legacy catalog file's meta.version is
	// not one the importer dispatch table handles (§4.7, §9).
	ErrVersionUnknown = errors.New("unknown catalog version")

	// ErrInterrupted indicates a maintenance operation stopped at a yield
	// point because the handle was asked to quit (§4.3).
	ErrInterrupted = errors.New("operation interrupted")

	// ErrStoreError wraps an underlying driver/SQL failure that isn't a
	// recognized catalog condition.
	ErrStoreError = errors.New("store error")

	// ErrExpectedParameter indicates a mutation was called without a
	// required parameter, such as an empty job UUID (§3 contract).
	ErrExpectedParameter = errors.New("expected parameter, got NONE")

	// ErrUpgrade indicates a catalog file is at a version newer than
	// INDEX_VERSION and this build cannot safely open it (§3 invariant 7).
	ErrUpgrade = errors.New("catalog requires upgrade")
)

// wrapStoreError wraps a database error with operation context, turning
// sql.ErrNoRows into ErrNotFound for consistent caller handling.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreError, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
