// Package stress implements the sketch-map stress functional and its gradient.
//
// For an embedded distance d, target dissimilarity Δ, filtered target F and
// pair weight w, every pair contributes
//
//	w·[(1-λ)(f(d) - F)² + λ(d - Δ)²]
//
// where f is the low-dimensional filter and λ the mixing parameter.
// Full sums this over all pairs of a flat N·d coordinate vector; Partial
// sums it between one free point and a fixed reference map. Both satisfy
// Objective, the "flat vector in, value and gradient out" contract expected
// by gonum's optimize package.
package stress

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/nozzle/sketchmap/transform"
)

// SingularDistance is the embedded distance below which a pair contributes
// no gradient.
const SingularDistance = 1e-12

// ErrShape is returned when objective inputs have inconsistent dimensions.
var ErrShape = errors.New("stress: shape mismatch")

// Objective is a differentiable scalar function of a flat coordinate vector.
type Objective interface {
	// Eval returns the stress at x. If grad is non-nil it is overwritten
	// with the gradient; it must have length Len().
	Eval(x, grad []float64) float64
	// Len returns the number of free coordinates.
	Len() int
}

// Problem adapts obj to gonum's optimize.Problem.
func Problem(obj Objective) optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			return obj.Eval(x, nil)
		},
		Grad: func(grad, x []float64) {
			obj.Eval(x, grad)
		},
	}
}

// pairTerm returns the stress of one pair and the scalar coef such that the
// gradient with respect to the free endpoint is coef·(p - x).
func pairTerm(d, target, filtered, w, lambda float64, low transform.Handle) (term, coef float64) {
	ddiff := d - target
	term = lambda * ddiff * ddiff
	grad := lambda * ddiff

	if lambda < 1 {
		fd, df := low.Eval(d)
		fdiff := fd - filtered
		term += (1 - lambda) * fdiff * fdiff
		grad += (1 - lambda) * fdiff * df
	}

	term *= w
	if d > SingularDistance {
		coef = 2 * w * grad / d
	}
	return term, coef
}

// Full is the joint stress of all N points of an embedding.
type Full struct {
	weights  mat.Symmetric
	targets  mat.Symmetric
	filtered mat.Symmetric
	n, dim   int
	lambda   float64
	low      transform.Handle
}

// NewFull returns the joint objective over N points in dim dimensions.
// weights, targets (Δ) and filtered (F) must all be N×N. filtered and low may
// be nil/zero when lambda is 1.
func NewFull(weights, targets, filtered mat.Symmetric, dim int, lambda float64, low transform.Handle) (*Full, error) {
	n := weights.SymmetricDim()
	if targets.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: weights are %d×%d, targets %d×%d", ErrShape, n, n, targets.SymmetricDim(), targets.SymmetricDim())
	}
	if lambda < 1 {
		if filtered == nil || filtered.SymmetricDim() != n {
			return nil, fmt.Errorf("%w: filtered targets must be %d×%d", ErrShape, n, n)
		}
		if low.IsZero() {
			return nil, fmt.Errorf("%w: low-dimensional filter is unset", ErrShape)
		}
	}
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension %d", ErrShape, dim)
	}
	return &Full{
		weights:  weights,
		targets:  targets,
		filtered: filtered,
		n:        n,
		dim:      dim,
		lambda:   lambda,
		low:      low,
	}, nil
}

// Len returns N·dim.
func (s *Full) Len() int { return s.n * s.dim }

// Eval returns the joint stress at x, laid out row-major as N blocks of dim
// coordinates. Pairs are visited in the order i = 1..N-1, j = 0..i-1.
func (s *Full) Eval(x, grad []float64) float64 {
	if grad != nil {
		clear(grad)
	}
	var total float64
	for i := 1; i < s.n; i++ {
		xi := x[i*s.dim : (i+1)*s.dim]
		for j := 0; j < i; j++ {
			w := s.weights.At(i, j)
			if w == 0 {
				continue
			}
			xj := x[j*s.dim : (j+1)*s.dim]
			d := floats.Distance(xi, xj, 2)

			var filtered float64
			if s.lambda < 1 {
				filtered = s.filtered.At(i, j)
			}
			term, coef := pairTerm(d, s.targets.At(i, j), filtered, w, s.lambda, s.low)
			total += term

			if grad == nil || coef == 0 {
				continue
			}
			gi := grad[i*s.dim : (i+1)*s.dim]
			gj := grad[j*s.dim : (j+1)*s.dim]
			for k := 0; k < s.dim; k++ {
				g := coef * (xi[k] - xj[k])
				gi[k] += g
				gj[k] -= g
			}
		}
	}
	return total
}

// Partial is the stress of a single free point against a fixed reference map.
type Partial struct {
	reference *mat.Dense
	targets   []float64
	filtered  []float64
	weights   []float64
	lambda    float64
	low       transform.Handle
	epsilon   float64
}

// NewPartial returns the out-of-sample objective for one point.
// reference is the M×d fixed embedding; targets (Δ_i), filtered (F_i) and
// weights (w_i) have length M. References with w_i < epsilon are skipped.
func NewPartial(reference *mat.Dense, targets, filtered, weights []float64, lambda float64, low transform.Handle, epsilon float64) (*Partial, error) {
	m, _ := reference.Dims()
	if len(targets) != m || len(weights) != m {
		return nil, fmt.Errorf("%w: %d reference points, %d targets, %d weights", ErrShape, m, len(targets), len(weights))
	}
	if lambda < 1 {
		if len(filtered) != m {
			return nil, fmt.Errorf("%w: %d reference points, %d filtered targets", ErrShape, m, len(filtered))
		}
		if low.IsZero() {
			return nil, fmt.Errorf("%w: low-dimensional filter is unset", ErrShape)
		}
	}
	return &Partial{
		reference: reference,
		targets:   targets,
		filtered:  filtered,
		weights:   weights,
		lambda:    lambda,
		low:       low,
		epsilon:   epsilon,
	}, nil
}

// Len returns the embedding dimension.
func (s *Partial) Len() int {
	_, d := s.reference.Dims()
	return d
}

// Eval returns the stress of placing the free point at p.
func (s *Partial) Eval(p, grad []float64) float64 {
	if grad != nil {
		clear(grad)
	}
	var total float64
	for i, w := range s.weights {
		if w < s.epsilon {
			continue
		}
		xi := s.reference.RawRowView(i)
		d := floats.Distance(p, xi, 2)

		var filtered float64
		if s.lambda < 1 {
			filtered = s.filtered[i]
		}
		term, coef := pairTerm(d, s.targets[i], filtered, w, s.lambda, s.low)
		total += term

		if grad == nil || coef == 0 {
			continue
		}
		for k := range grad {
			grad[k] += coef * (p[k] - xi[k])
		}
	}
	return total
}
