package domain

import "errors"

// Failure categories surfaced by the catalog boundary. The reset operation
// never recovers locally; errors are wrapped with the failing step and
// relayed to the caller, who can match them with errors.Is.
var (
	// ErrPermission indicates the caller lacks rights to drop or create
	// objects in the target namespace. Retrying will not help.
	ErrPermission = errors.New("permission denied by catalog")

	// ErrConnectivity indicates the catalog could not be reached. The whole
	// reset is idempotent, so the caller may retry it.
	ErrConnectivity = errors.New("catalog unreachable")

	// ErrConcurrentModification indicates another writer raced this
	// operation (typically a second resetter creating the same database).
	// Retrying converges because the operation is idempotent.
	ErrConcurrentModification = errors.New("concurrent catalog modification")
)
