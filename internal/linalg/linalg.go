// Package linalg holds the dense linear algebra shared by the solvers.
package linalg

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSVDFailed is returned when the singular value decomposition does not converge.
var ErrSVDFailed = errors.New("linalg: SVD factorization failed")

// Laplacian returns the weighted graph Laplacian of w:
// L_ij = -w_ij for i != j and L_ii = sum_{j != i} w_ij.
// The diagonal of w is ignored. Every row of L sums to zero.
func Laplacian(w mat.Symmetric) *mat.SymDense {
	n := w.SymmetricDim()
	l := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		var deg float64
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			wij := w.At(i, j)
			deg += wij
			if j > i {
				l.SetSym(i, j, -wij)
			}
		}
		l.SetSym(i, i, deg)
	}
	return l
}

// PseudoInverse returns the Moore–Penrose pseudo-inverse of a.
//
// Singular values below 1e-12 * max(rows, cols) * sigma_max are treated as
// zero, so the null space of rank-deficient matrices such as graph
// Laplacians is projected out rather than inverted.
func PseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	r, c := a.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, ErrSVDFailed
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	var maxS float64
	for _, si := range s {
		maxS = math.Max(maxS, si)
	}
	cutoff := 1e-12 * float64(max(r, c)) * maxS

	// Scale the columns of V by 1/s_i, then multiply by U^T.
	for i, si := range s {
		inv := 0.0
		if si > cutoff {
			inv = 1 / si
		}
		for k := 0; k < c; k++ {
			v.Set(k, i, v.At(k, i)*inv)
		}
	}

	pinv := mat.NewDense(c, r, nil)
	pinv.Mul(&v, u.T())
	return pinv, nil
}
