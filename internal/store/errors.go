package store

import "errors"

// Sentinel errors returned by repository methods to signal well-known
// failure conditions. Callers should use [errors.Is] to match against these
// values. The engine never downgrades a failure into an implicit "allow":
// every error here propagates to the caller.
var (
	// ErrValidation is returned when a policy or relationship carries
	// malformed fields. Nothing is persisted on a validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a query, update or delete targets a
	// policy, relationship, template or quarantine record that does not
	// exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when an insert collides with the
	// uniqueness invariant of its table (e.g. a duplicate credential
	// relationship or template name).
	ErrAlreadyExists = errors.New("record already exists")

	// ErrAlreadyQuarantined is returned when a file whose content hash
	// matches a currently quarantined record is quarantined again. This
	// is the dedup invariant, not a caller bug.
	ErrAlreadyQuarantined = errors.New("file content already quarantined")

	// ErrStorageUnavailable is returned when the circuit breaker is open
	// or the underlying storage I/O fails. Callers fail fast instead of
	// retrying into a degraded backend.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrIntegrity is returned when the database integrity check detects
	// corruption. Subsequent writes fail fast via the circuit breaker.
	ErrIntegrity = errors.New("database integrity check failed")
)

// Low-level database operation errors. These are returned (or wrapped) by
// repository methods when a SQL-level operation fails before any domain
// logic can be applied.
var (
	// ErrBuildingSQLQuery is returned when constructing a parameterised
	// SQL query fails (e.g. invalid argument count or unsupported type).
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a SELECT or similar
	// read-only query against the database fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the database driver cannot
	// start a new transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommittingTransaction is returned when committing an open
	// transaction fails. The transaction is considered rolled back at
	// this point.
	ErrCommittingTransaction = errors.New("failed to commit transaction")

	// ErrExecutingStatement is returned when executing a DML statement
	// (INSERT, UPDATE, DELETE) fails.
	ErrExecutingStatement = errors.New("failed to execute statement")

	// ErrScanningRow is returned when scanning column values from a
	// single result row into a destination struct fails.
	ErrScanningRow = errors.New("failed to scan row")

	// ErrScanningRows is returned when scanning column values during
	// multi-row iteration fails, typically mid-result-set.
	ErrScanningRows = errors.New("failed to scan rows")
)
