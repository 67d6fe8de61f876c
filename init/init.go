// Package init provides initial embeddings for the SMACOF solver.
// This includes classical (Torgerson) scaling and random initialization.
package init

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/sketchmap/internal/rand"
)

// Method specifies the initialization method.
type Method int

const (
	// Classical uses classical multidimensional scaling of the dissimilarities
	Classical Method = iota
	// Random draws coordinates uniformly from [-1, 1)
	Random
)

// ParseMethod maps a configuration name to a Method.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "", "classical":
		return Classical, nil
	case "random":
		return Random, nil
	default:
		return 0, fmt.Errorf("init: unknown method %q (want classical or random)", name)
	}
}

func (m Method) String() string {
	switch m {
	case Classical:
		return "classical"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ClassicalEmbedding computes the classical scaling of delta into dim
// dimensions: the top eigenvectors of the double-centred matrix
// B = -1/2 J Δ² J, scaled by the square roots of their eigenvalues.
// Directions with non-positive eigenvalues are left at zero.
func ClassicalEmbedding(delta mat.Symmetric, dim int) (*mat.Dense, bool) {
	n := delta.SymmetricDim()
	if n == 0 {
		return nil, false
	}

	// Squared dissimilarities with row and grand means.
	sq := make([]float64, n*n)
	rowMean := make([]float64, n)
	var grand float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := delta.At(i, j)
			sq[i*n+j] = d * d
			rowMean[i] += d * d
		}
		grand += rowMean[i]
		rowMean[i] /= float64(n)
	}
	grand /= float64(n * n)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(sq[i*n+j]-rowMean[i]-rowMean[j]+grand))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(b, true); !ok {
		return nil, false
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Sort by eigenvalue, largest first.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return values[order[a]] > values[order[b]]
	})

	result := mat.NewDense(n, dim, nil)
	for d := 0; d < dim && d < n; d++ {
		lambda := values[order[d]]
		if lambda <= 0 {
			break
		}
		scale := math.Sqrt(lambda)
		for i := 0; i < n; i++ {
			result.Set(i, d, scale*vectors.At(i, order[d]))
		}
	}
	return result, true
}

// RandomEmbedding draws an n×dim embedding uniformly from [-1, 1).
// The draw order (row by row) matches numpy.random.RandomState(seed).uniform(-1, 1, (n, dim)).
func RandomEmbedding(n, dim int, seed int64) *mat.Dense {
	mt := rand.NewMT19937(uint32(seed))
	result := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < dim; d++ {
			result.Set(i, d, mt.Uniform(-1, 1))
		}
	}
	return result
}

// InitializeEmbedding creates an initial embedding based on the method.
// Classical scaling falls back to random when the eigendecomposition fails
// or the dissimilarities carry no spread.
func InitializeEmbedding(delta mat.Symmetric, dim int, method Method, seed int64) *mat.Dense {
	n := delta.SymmetricDim()
	switch method {
	case Classical:
		embedding, ok := ClassicalEmbedding(delta, dim)
		if ok && !degenerate(embedding) {
			return embedding
		}
		return RandomEmbedding(n, dim, seed)
	default:
		return RandomEmbedding(n, dim, seed)
	}
}

// degenerate reports whether every row of the embedding coincides, which
// would leave the Guttman transform with no distances to work from.
func degenerate(embedding *mat.Dense) bool {
	n, dim := embedding.Dims()
	for i := 1; i < n; i++ {
		for d := 0; d < dim; d++ {
			if embedding.At(i, d) != embedding.At(0, d) {
				return false
			}
		}
	}
	return true
}
