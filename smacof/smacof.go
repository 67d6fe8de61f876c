// Package smacof implements metric multidimensional scaling by stress
// majorization (SMACOF).
//
// Given pair weights W, target dissimilarities Δ and an initial N×d
// embedding Z0, Solve repeatedly applies the Guttman transform
//
//	Z' = V⁺ · B(Z) · Z
//
// where V is the weighted graph Laplacian of W and B(Z) is built from the
// current embedded distances. For the raw (unfiltered) stress
//
//	σ(Z) = Σ_{i<j} W_ij (Δ_ij - D_ij(Z))²
//
// every step is guaranteed not to increase σ. The iteration stops once the
// weight-normalised stress changes by less than the tolerance.
package smacof

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/sketchmap/internal/linalg"
	"github.com/nozzle/sketchmap/internal/parallel"
)

var (
	// ErrDimensionMismatch is returned when W, Δ and Z disagree in shape.
	ErrDimensionMismatch = errors.New("smacof: dimension mismatch")

	// ErrInvalidInput is returned for out-of-domain values: negative or
	// non-finite weights or dissimilarities, a non-zero weight diagonal,
	// zero total weight, or a non-positive tolerance or iteration cap.
	ErrInvalidInput = errors.New("smacof: invalid input")

	// ErrNotConverged is matched by every *NonConvergenceError.
	ErrNotConverged = errors.New("smacof: iteration cap reached without convergence")
)

// NonConvergenceError reports that the iteration cap was reached before the
// stress change dropped below the tolerance. The caller's embedding is left
// untouched.
type NonConvergenceError struct {
	Iterations int     // iterations performed
	Stress     float64 // normalised stress of the last iterate
	Change     float64 // |Δσ| of the last step
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("smacof: no convergence after %d iterations (stress %.6g, last change %.3g)",
		e.Iterations, e.Stress, e.Change)
}

// Is makes errors.Is(err, ErrNotConverged) match.
func (e *NonConvergenceError) Is(target error) bool {
	return target == ErrNotConverged
}

// Config configures a SMACOF run.
type Config struct {
	// Tolerance on the change of the normalised stress between iterations.
	// Default: 1e-6
	Tolerance float64

	// MaxIterations is the hard iteration cap.
	// Default: 1000
	MaxIterations int

	// NumWorkers for the per-iteration matrix builds (0 = auto).
	NumWorkers int

	// Logger receives one debug record per iteration. nil discards output.
	Logger *log.Logger

	// ProgressCallback is called after each iteration with the iteration
	// number (from 1) and the normalised stress.
	ProgressCallback func(iter int, stress float64)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Tolerance:     1e-6,
		MaxIterations: 1000,
	}
}

// Result summarises a converged run.
type Result struct {
	Iterations    int
	InitialStress float64 // normalised stress of Z0
	Stress        float64 // normalised stress of the returned embedding
}

// Solve runs SMACOF from the embedding in z and, on convergence, overwrites
// z with the result. w and delta must be N×N and z N×d.
func Solve(w, delta mat.Symmetric, z *mat.Dense, cfg Config) (Result, error) {
	totalWeight, err := validate(w, delta, z, cfg)
	if err != nil {
		return Result{}, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	workers := parallel.Workers(cfg.NumWorkers)

	n, dim := z.Dims()

	v := linalg.Laplacian(w)
	vPlus, err := linalg.PseudoInverse(v)
	if err != nil {
		return Result{}, err
	}

	cur := mat.DenseCopyOf(z)
	next := mat.NewDense(n, dim, nil)
	bz := mat.NewDense(n, n, nil)
	tmp := mat.NewDense(n, dim, nil)
	dists := mat.NewDense(n, n, nil)

	fillDistances(dists, cur, workers)
	sigma := rawStress(w, delta, dists) / totalWeight
	res := Result{InitialStress: sigma}

	var change float64
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		guttman(bz, w, delta, dists, workers)
		tmp.Mul(bz, cur)
		next.Mul(vPlus, tmp)

		fillDistances(dists, next, workers)
		newSigma := rawStress(w, delta, dists) / totalWeight
		change = math.Abs(newSigma - sigma)

		logger.Debug("smacof iteration", "iter", iter, "stress", newSigma, "change", change)
		if cfg.ProgressCallback != nil {
			cfg.ProgressCallback(iter, newSigma)
		}

		sigma = newSigma
		cur, next = next, cur
		if change < cfg.Tolerance {
			z.Copy(cur)
			res.Iterations = iter
			res.Stress = sigma
			return res, nil
		}
	}

	return Result{}, &NonConvergenceError{
		Iterations: cfg.MaxIterations,
		Stress:     sigma,
		Change:     change,
	}
}

// Stress returns the unnormalised stress Σ_{i<j} W_ij (Δ_ij - D_ij(Z))²
// accumulated in the order i = 1..N-1, j = 0..i-1.
func Stress(w, delta mat.Symmetric, z *mat.Dense) float64 {
	n, _ := z.Dims()
	dists := mat.NewDense(n, n, nil)
	fillDistances(dists, z, 1)
	return rawStress(w, delta, dists)
}

// Distances returns the pairwise Euclidean distances between the rows of z.
func Distances(z *mat.Dense) *mat.SymDense {
	n, _ := z.Dims()
	d := mat.NewSymDense(n, nil)
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			d.SetSym(i, j, floats.Distance(z.RawRowView(i), z.RawRowView(j), 2))
		}
	}
	return d
}

// fillDistances writes the full N×N distance matrix of z into dst.
// Each row is written by exactly one worker.
func fillDistances(dst, z *mat.Dense, workers int) {
	n, _ := z.Dims()
	parallel.Rows(n, workers, func(i int) {
		row := dst.RawRowView(i)
		zi := z.RawRowView(i)
		for j := 0; j < n; j++ {
			if j == i {
				row[j] = 0
				continue
			}
			row[j] = floats.Distance(zi, z.RawRowView(j), 2)
		}
	})
}

// guttman fills dst with B(Z): B_ij = -W_ij Δ_ij / D_ij for D_ij > 0 and 0
// otherwise, B_ii = -Σ_{j≠i} B_ij.
func guttman(dst *mat.Dense, w, delta mat.Symmetric, dists *mat.Dense, workers int) {
	n := w.SymmetricDim()
	parallel.Rows(n, workers, func(i int) {
		row := dst.RawRowView(i)
		drow := dists.RawRowView(i)
		var diag float64
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			var b float64
			if drow[j] > 0 {
				b = -w.At(i, j) * delta.At(i, j) / drow[j]
			}
			row[j] = b
			diag -= b
		}
		row[i] = diag
	})
}

func rawStress(w, delta mat.Symmetric, dists *mat.Dense) float64 {
	n := w.SymmetricDim()
	var sigma float64
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			diff := delta.At(i, j) - dists.At(i, j)
			sigma += w.At(i, j) * diff * diff
		}
	}
	return sigma
}

// validate checks shapes and domains and returns Σ_{i<j} W_ij.
func validate(w, delta mat.Symmetric, z *mat.Dense, cfg Config) (float64, error) {
	n := w.SymmetricDim()
	if delta.SymmetricDim() != n {
		return 0, fmt.Errorf("%w: weights are %d×%d, dissimilarities %d×%d",
			ErrDimensionMismatch, n, n, delta.SymmetricDim(), delta.SymmetricDim())
	}
	rows, dim := z.Dims()
	if rows != n {
		return 0, fmt.Errorf("%w: %d points but embedding has %d rows", ErrDimensionMismatch, n, rows)
	}
	if dim < 1 {
		return 0, fmt.Errorf("%w: embedding dimension %d", ErrDimensionMismatch, dim)
	}
	if !(cfg.Tolerance > 0) {
		return 0, fmt.Errorf("%w: tolerance must be positive, got %g", ErrInvalidInput, cfg.Tolerance)
	}
	if cfg.MaxIterations < 1 {
		return 0, fmt.Errorf("%w: iteration cap must be at least 1, got %d", ErrInvalidInput, cfg.MaxIterations)
	}

	var total float64
	for i := 0; i < n; i++ {
		if wii := w.At(i, i); wii != 0 {
			return 0, fmt.Errorf("%w: weight diagonal W[%d][%d] = %g", ErrInvalidInput, i, i, wii)
		}
		for j := 0; j < i; j++ {
			wij := w.At(i, j)
			if wij < 0 || math.IsNaN(wij) || math.IsInf(wij, 0) {
				return 0, fmt.Errorf("%w: weight W[%d][%d] = %g", ErrInvalidInput, i, j, wij)
			}
			dij := delta.At(i, j)
			if dij < 0 || math.IsNaN(dij) || math.IsInf(dij, 0) {
				return 0, fmt.Errorf("%w: dissimilarity Δ[%d][%d] = %g", ErrInvalidInput, i, j, dij)
			}
			total += wij
		}
		for k := 0; k < dim; k++ {
			if v := z.At(i, k); math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: initial embedding Z[%d][%d] = %g", ErrInvalidInput, i, k, v)
			}
		}
	}
	if !(total > 0) {
		return 0, fmt.Errorf("%w: total weight is zero", ErrInvalidInput)
	}
	return total, nil
}
