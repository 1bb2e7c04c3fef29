// Package sparse provides the single-row sparse vector shared by the text vectorizer,
// the feature assembler and the tree ensemble.
package sparse

import "fmt"

// Vector is one row of a CSR matrix. Indices are strictly increasing and every stored
// value is non-zero; absent columns are implicit zeros.
type Vector struct {
	Dim     int
	Indices []int
	Values  []float64
}

// FromDense builds a sparse row from a dense slice, dropping zero entries the same way a
// dense-to-sparse conversion does.
func FromDense(values []float64) Vector {
	v := Vector{Dim: len(values)}
	for i, x := range values {
		if x != 0 {
			v.Indices = append(v.Indices, i)
			v.Values = append(v.Values, x)
		}
	}
	return v
}

// HStack concatenates rows horizontally, preserving argument order: the columns of the
// first row come first, the columns of the last row come last.
func HStack(rows ...Vector) Vector {
	var out Vector
	for _, r := range rows {
		for i, idx := range r.Indices {
			out.Indices = append(out.Indices, out.Dim+idx)
			out.Values = append(out.Values, r.Values[i])
		}
		out.Dim += r.Dim
	}
	return out
}

// NNZ returns the number of stored entries
func (v Vector) NNZ() int {
	return len(v.Indices)
}

// At returns the value at column i and whether it is stored
func (v Vector) At(i int) (float64, bool) {
	lo, hi := 0, len(v.Indices)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case v.Indices[mid] == i:
			return v.Values[mid], true
		case v.Indices[mid] < i:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// Dense expands the row into a dense slice of length Dim
func (v Vector) Dense() []float64 {
	out := make([]float64, v.Dim)
	for i, idx := range v.Indices {
		out[idx] = v.Values[i]
	}
	return out
}

// Validate checks the CSR invariants of the row
func (v Vector) Validate() error {
	if len(v.Indices) != len(v.Values) {
		return fmt.Errorf("indices/values length mismatch: %d != %d", len(v.Indices), len(v.Values))
	}
	prev := -1
	for _, idx := range v.Indices {
		if idx <= prev {
			return fmt.Errorf("indices not strictly increasing at column %d", idx)
		}
		if idx >= v.Dim {
			return fmt.Errorf("column %d out of range for dimension %d", idx, v.Dim)
		}
		prev = idx
	}
	return nil
}

// Equal reports whether two rows have the same dimension and stored entries
func (v Vector) Equal(o Vector) bool {
	if v.Dim != o.Dim || len(v.Indices) != len(o.Indices) {
		return false
	}
	for i := range v.Indices {
		if v.Indices[i] != o.Indices[i] || v.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}
