package database

import "errors"

var (
	// ErrAssetNotFound is returned when an asset lookup finds no row.
	ErrAssetNotFound = errors.New("database: asset not found")
	// ErrTreeNotFound is returned when a tree lookup finds no row.
	ErrTreeNotFound = errors.New("database: tree not found")
	// ErrStaleSeq is returned when an update is guarded out because the
	// incoming seq/owner_delegate_seq is not strictly greater than the
	// stored value.
	ErrStaleSeq = errors.New("database: update rejected, seq not greater than stored value")
	// ErrSignatureAlreadySeen is returned when a tree transaction signature
	// has already been recorded for a tree (idempotent replay guard).
	ErrSignatureAlreadySeen = errors.New("database: transaction signature already recorded for tree")
	// ErrMetadataTaskNotFound is returned when Fail targets a metadata
	// task id that does not exist.
	ErrMetadataTaskNotFound = errors.New("database: metadata task not found")
	// ErrNoTaskAvailable is returned by ClaimNext when the queue is empty
	// or every pending task is currently locked.
	ErrNoTaskAvailable = errors.New("database: no metadata task available")
)
