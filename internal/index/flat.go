// Package index provides an exact nearest-neighbor index over chunk vectors.
package index

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// Hit is one search match. Row is the position of the vector at build time.
type Hit struct {
	Row      int
	Distance float64 // squared Euclidean distance, smaller is closer
}

// Flat is an exhaustive squared-L2 index. It is immutable after Build and
// safe for concurrent searches.
type Flat struct {
	dim  int
	vecs [][]float32
}

// Build constructs a flat index over vectors. Every vector must have length dim.
// An empty vector set produces an empty index that still enforces dim on queries.
func Build(dim int, vectors [][]float32) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	vecs := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), dim)
		}
		vecs[i] = slices.Clone(v)
	}
	return &Flat{dim: dim, vecs: vecs}, nil
}

// Dimension returns the vector length the index accepts.
func (f *Flat) Dimension() int { return f.dim }

// Len returns the number of rows.
func (f *Flat) Len() int { return len(f.vecs) }

// Search returns the min(k, Len) rows closest to query in ascending distance.
// Ties are broken by row so results are deterministic.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 || len(f.vecs) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, len(f.vecs))
	for i, v := range f.vecs {
		hits[i] = Hit{Row: i, Distance: SquaredL2(query, v)}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})

	return hits[:min(k, len(hits))], nil
}

// SquaredL2 computes the squared Euclidean distance of two equal-length vectors.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

var magic = [4]byte{'F', 'L', 'T', '1'}

// MarshalBinary stores: magic "FLT1", dim(uint32), n(uint32), then n*dim
// little-endian float32 values in row order.
func (f *Flat) MarshalBinary() ([]byte, error) {
	out := make([]byte, 12, 12+4*f.dim*len(f.vecs))
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint32(out[4:8], uint32(f.dim))
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(f.vecs)))
	for _, vec := range f.vecs {
		for _, v := range vec {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

// UnmarshalBinary restores an index written by MarshalBinary.
func (f *Flat) UnmarshalBinary(data []byte) error {
	if len(data) < 12 || [4]byte(data[0:4]) != magic {
		return fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	n := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrCorruptIndex, dim)
	}
	// Bound the header by the payload before multiplying so 4*dim*n cannot wrap.
	if avail := (len(data) - 12) / 4; n < 0 || n > avail/dim {
		return fmt.Errorf("%w: %d vectors of dimension %d exceed %d bytes", ErrCorruptIndex, n, dim, len(data))
	}
	if want := 12 + 4*dim*n; len(data) != want {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrCorruptIndex, want, len(data))
	}

	off := 12
	vecs := make([][]float32, n)
	for i := range vecs {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vecs[i] = vec
	}

	f.dim = dim
	f.vecs = vecs
	return nil
}
