package index

import "errors"

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidDimension  = errors.New("index dimension must be positive")
	ErrCorruptIndex      = errors.New("corrupt index data")
)
