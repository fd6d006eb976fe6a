package storage

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrSnapshotMismatch  = errors.New("snapshot artifacts do not match")
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidText       = errors.New("chunk text is not valid UTF-8")
)
