package index

import (
	"fmt"
	"os"

	"github.com/bull/docqa-server/internal/fsutil"
)

// Persist writes the index to path atomically.
func Persist(f *Flat, path string) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Load reads an index written by Persist. If wantDim is positive the loaded
// index must have that dimension.
func Load(path string, wantDim int) (*Flat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	f := &Flat{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if wantDim > 0 && f.dim != wantDim {
		return nil, fmt.Errorf("%w: index has %d dimensions, expected %d",
			ErrDimensionMismatch, f.dim, wantDim)
	}
	return f, nil
}
