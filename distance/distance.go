// Package distance turns feature vectors into the squared dissimilarity
// matrices consumed by the sketch-map projector.
package distance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Func is a distance function between two vectors.
type Func func(x, y []float64) float64

// Registry maps metric names to their implementations.
var Registry = map[string]Func{
	// Minkowski family
	"euclidean": Euclidean,
	"l2":        Euclidean,
	"manhattan": Manhattan,
	"l1":        Manhattan,
	"taxicab":   Manhattan,
	"chebyshev": Chebyshev,
	"linf":      Chebyshev,

	// Angular metrics
	"cosine":      Cosine,
	"correlation": Correlation,
}

// Get returns the distance function for the given metric name.
func Get(name string) (Func, bool) {
	f, ok := Registry[strings.ToLower(name)]
	return f, ok
}

// Names returns the registered metric names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Euclidean computes the standard Euclidean (L2) distance.
// D(x, y) = sqrt(sum((x_i - y_i)^2))
func Euclidean(x, y []float64) float64 {
	return floats.Distance(x, y, 2)
}

// Manhattan computes the Manhattan (L1/taxicab) distance.
// D(x, y) = sum(|x_i - y_i|)
func Manhattan(x, y []float64) float64 {
	return floats.Distance(x, y, 1)
}

// Chebyshev computes the Chebyshev (L-infinity) distance.
// D(x, y) = max(|x_i - y_i|)
func Chebyshev(x, y []float64) float64 {
	return floats.Distance(x, y, math.Inf(1))
}

// Cosine computes the cosine distance.
// D(x, y) = 1 - (x . y) / (||x|| * ||y||)
func Cosine(x, y []float64) float64 {
	normX := floats.Norm(x, 2)
	normY := floats.Norm(y, 2)
	if normX == 0 || normY == 0 {
		return 1.0
	}
	similarity := floats.Dot(x, y) / (normX * normY)
	// Clamp to [-1, 1] to handle floating point errors
	similarity = math.Max(-1, math.Min(1, similarity))
	return 1.0 - similarity
}

// Correlation computes the correlation distance.
// D(x, y) = 1 - pearson(x, y)
func Correlation(x, y []float64) float64 {
	if stat.StdDev(x, nil) == 0 || stat.StdDev(y, nil) == 0 {
		return 1.0
	}
	return 1.0 - stat.Correlation(x, y, nil)
}

// SquaredMatrix returns the N×N matrix of squared distances between the rows
// of data under the named metric.
func SquaredMatrix(data [][]float64, metric string) (*mat.SymDense, error) {
	fn, ok := Get(metric)
	if !ok {
		return nil, fmt.Errorf("distance: unknown metric %q (want one of %s)", metric, strings.Join(Names(), ", "))
	}
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("distance: no observations")
	}
	dim := len(data[0])
	for i, row := range data {
		if len(row) != dim {
			return nil, fmt.Errorf("distance: row %d has %d features, want %d", i, len(row), dim)
		}
	}

	sq := mat.NewSymDense(n, nil)
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			d := fn(data[i], data[j])
			sq.SetSym(i, j, d*d)
		}
	}
	return sq, nil
}

// SquaredTo returns the squared distance from query to every row of data.
func SquaredTo(query []float64, data [][]float64, metric string) ([]float64, error) {
	fn, ok := Get(metric)
	if !ok {
		return nil, fmt.Errorf("distance: unknown metric %q (want one of %s)", metric, strings.Join(Names(), ", "))
	}
	out := make([]float64, len(data))
	for i, row := range data {
		if len(row) != len(query) {
			return nil, fmt.Errorf("distance: row %d has %d features, want %d", i, len(row), len(query))
		}
		d := fn(query, row)
		out[i] = d * d
	}
	return out, nil
}

// ToRows copies a symmetric matrix into a slice of rows.
func ToRows(m mat.Symmetric) [][]float64 {
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}
