package sketchmap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// symmetryTolerance is the relative asymmetry accepted in input matrices.
const symmetryTolerance = 1e-9

// symFromRows converts an N×N row slice into a symmetric matrix, checking
// shape, finiteness and symmetry.
func symFromRows(name string, rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: %s: no rows", ErrConfiguration, name)
	}
	m := mat.NewSymDense(n, nil)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: %s: row %d has %d columns, want %d", ErrConfiguration, name, i, len(row), n)
		}
		for j := 0; j <= i; j++ {
			a, b := row[j], rows[j][i]
			if math.IsNaN(a) || math.IsInf(a, 0) {
				return nil, fmt.Errorf("%w: %s[%d][%d] is %g", ErrConfiguration, name, i, j, a)
			}
			if math.Abs(a-b) > symmetryTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b))) {
				return nil, fmt.Errorf("%w: %s is not symmetric at (%d, %d): %g vs %g", ErrConfiguration, name, i, j, a, b)
			}
			m.SetSym(i, j, a)
		}
	}
	return m, nil
}

// dissimilarities returns Δ = sqrt(sq) for an N×N matrix of squared
// dissimilarities. The diagonal is forced to zero.
func dissimilarities(sq [][]float64) (*mat.SymDense, error) {
	m, err := symFromRows("squared distances", sq)
	if err != nil {
		return nil, err
	}
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 0)
		for j := 0; j < i; j++ {
			v := m.At(i, j)
			if v < 0 {
				return nil, fmt.Errorf("%w: squared distance (%d, %d) is negative: %g", ErrConfiguration, i, j, v)
			}
			m.SetSym(i, j, math.Sqrt(v))
		}
	}
	return m, nil
}

// denseFromRows copies an n×dim row slice into a dense matrix.
func denseFromRows(name string, rows [][]float64, n, dim int) (*mat.Dense, error) {
	if len(rows) != n {
		return nil, fmt.Errorf("%w: %s has %d rows, want %d", ErrConfiguration, name, len(rows), n)
	}
	z := mat.NewDense(n, dim, nil)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrConfiguration, name, i, len(row), dim)
		}
		z.SetRow(i, row)
	}
	return z, nil
}

func toRows(z *mat.Dense) [][]float64 {
	n, _ := z.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, z)
	}
	return rows
}

// flatten returns the row-major coordinates of z as a new slice.
func flatten(z *mat.Dense) []float64 {
	n, dim := z.Dims()
	x := make([]float64, 0, n*dim)
	for i := 0; i < n; i++ {
		x = append(x, z.RawRowView(i)...)
	}
	return x
}

func totalWeight(w mat.Symmetric) float64 {
	n := w.SymmetricDim()
	var total float64
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			total += w.At(i, j)
		}
	}
	return total
}
