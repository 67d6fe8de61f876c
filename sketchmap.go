// Package sketchmap implements sketch-map dimensionality reduction.
//
// Sketch-map embeds N observations in a handful of dimensions from their
// pairwise dissimilarities. The embedding minimises a weighted stress that
// blends exact-distance preservation with a filtered term, in which both
// the high-dimensional dissimilarities and the embedded distances are
// passed through sigmoid-like filters before being compared:
//
//	σ(Z) = Σ_{i<j} W_ij [(1-λ)(f_low(D_ij) - f_high(Δ_ij))² + λ(D_ij - Δ_ij)²]
//
// The metric term is solved exactly by SMACOF; for λ < 1 the SMACOF result
// is refined by a quasi-Newton minimiser on the full stress. New
// observations can then be placed into the fitted map without re-solving.
//
// Basic usage:
//
//	p, err := sketchmap.New(sketchmap.DefaultConfig())
//	embedding, err := p.Fit(sketchmap.UniformWeights(n), squaredDistances, nil)
//	point, err := p.Project(newSquaredDistances, nil)
package sketchmap

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"

	smapinit "github.com/nozzle/sketchmap/init"
	"github.com/nozzle/sketchmap/smacof"
	"github.com/nozzle/sketchmap/stress"
	"github.com/nozzle/sketchmap/transform"
)

// Config configures the sketch-map projector.
type Config struct {
	// HighDim is the filter descriptor for high-dimensional dissimilarities,
	// e.g. "SMAP R_0=4 A=8 B=2". Leave empty to reuse the filter of Reuse.
	// Default: "SMAP R_0=4 A=8 B=2"
	HighDim string

	// LowDim is the filter descriptor for embedded distances.
	// Leave empty to reuse the filter of Reuse.
	// Default: "SMAP R_0=4 A=2 B=2"
	LowDim string

	// Reuse is a configured projector whose filters are shared when
	// HighDim or LowDim is empty.
	Reuse *Projector

	// Lambda mixes pure distances into the stress.
	// 0 = pure filtered (sketch-map) stress, 1 = pure metric stress.
	// Default: 0
	Lambda float64

	// Epsilon is the weight below which reference points are ignored
	// during out-of-sample projection.
	// Default: 1e-12
	Epsilon float64

	// NComponents is the dimensionality of the embedding.
	// Default: 2
	NComponents int

	// Tolerance on the change of normalised stress between SMACOF iterations.
	// Default: 1e-6
	Tolerance float64

	// MaxIterations caps the SMACOF iterations. Reaching the cap is an error.
	// Default: 1000
	MaxIterations int

	// Init is the initialization used when Fit is given no embedding.
	// Options: "classical" or "random"
	// Default: "classical"
	Init string

	// Seed for random initialization.
	// Default: 42
	Seed int64

	// Refine selects the minimiser used after SMACOF when λ < 1 and for
	// out-of-sample projection.
	// Options: "lbfgs", "bfgs", "cg" or "none" (SMACOF only; projection
	// then uses "lbfgs")
	// Default: "lbfgs"
	Refine string

	// RefineIterations caps the minimiser's major iterations.
	// Default: 1000
	RefineIterations int

	// NumWorkers for parallel matrix builds.
	// 0 = auto-detect based on CPU cores.
	// Default: 0
	NumWorkers int

	// Verbose enables debug logging to stderr when Logger is nil.
	// Default: false
	Verbose bool

	// Logger receives progress records. nil discards them unless Verbose.
	Logger *log.Logger

	// ProgressCallback is called after each SMACOF iteration with
	// (iteration, normalised stress).
	// Default: nil
	ProgressCallback func(iter int, stress float64)
}

// DefaultConfig returns the default sketch-map configuration.
func DefaultConfig() Config {
	return Config{
		HighDim:          "SMAP R_0=4 A=8 B=2",
		LowDim:           "SMAP R_0=4 A=2 B=2",
		Lambda:           0,
		Epsilon:          1e-12,
		NComponents:      2,
		Tolerance:        1e-6,
		MaxIterations:    1000,
		Init:             "classical",
		Seed:             42,
		Refine:           "lbfgs",
		RefineIterations: 1000,
		NumWorkers:       0,
		Verbose:          false,
	}
}

// Projector is a configured sketch-map model.
type Projector struct {
	Config Config

	high, low transform.Handle
	init      smapinit.Method
	logger    *log.Logger

	// Learned state after fitting
	weights     *mat.SymDense
	delta       *mat.SymDense
	filtered    *mat.SymDense
	embedding   *mat.Dense
	totalWeight float64
	stress      float64
}

// New validates the configuration and resolves both filters.
func New(config Config) (*Projector, error) {
	if !(config.Lambda >= 0 && config.Lambda <= 1) {
		return nil, fmt.Errorf("%w: mixing parameter must be between 0 and 1, got %g", ErrConfiguration, config.Lambda)
	}
	if config.NComponents < 1 {
		return nil, fmt.Errorf("%w: NComponents must be at least 1, got %d", ErrConfiguration, config.NComponents)
	}
	if config.Epsilon < 0 {
		return nil, fmt.Errorf("%w: Epsilon must be non-negative, got %g", ErrConfiguration, config.Epsilon)
	}
	if _, err := minimizer(config.Refine); err != nil {
		return nil, err
	}
	method, err := smapinit.ParseMethod(config.Init)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	p := &Projector{Config: config, init: method, logger: newLogger(config)}

	p.high, err = resolveFilter("high", config.HighDim, config.Reuse, (*Projector).HighDim)
	if err != nil {
		return nil, err
	}
	p.low, err = resolveFilter("low", config.LowDim, config.Reuse, (*Projector).LowDim)
	if err != nil {
		return nil, err
	}

	p.logger.Info("sketch-map configured",
		"high", p.high, "low", p.low,
		"lambda", config.Lambda, "components", config.NComponents)
	return p, nil
}

func newLogger(config Config) *log.Logger {
	switch {
	case config.Logger != nil:
		return config.Logger
	case config.Verbose:
		return log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           log.DebugLevel,
		})
	default:
		return log.New(io.Discard)
	}
}

// resolveFilter parses descriptor, or shares the peer's filter when the
// descriptor is empty.
func resolveFilter(space, descriptor string, peer *Projector, get func(*Projector) transform.Handle) (transform.Handle, error) {
	if descriptor != "" {
		h, err := transform.Parse(descriptor)
		if err != nil {
			return transform.Handle{}, fmt.Errorf("%w: %s-dimensional filter: %w", ErrConfiguration, space, err)
		}
		return h, nil
	}
	if peer == nil {
		return transform.Handle{}, fmt.Errorf("%w: %s-dimensional filter is not set and there is no projector to reuse it from",
			ErrConfiguration, space)
	}
	h := get(peer)
	if h.IsZero() {
		return transform.Handle{}, fmt.Errorf("%w: reused projector has no %s-dimensional filter", ErrConfiguration, space)
	}
	return h, nil
}

// HighDim returns the filter applied to high-dimensional dissimilarities.
func (p *Projector) HighDim() transform.Handle { return p.high }

// LowDim returns the filter applied to embedded distances.
func (p *Projector) LowDim() transform.Handle { return p.low }

// Metric reports whether the stress reduces to the pure metric stress,
// in which case SMACOF alone is exact.
func (p *Projector) Metric() bool {
	return p.Config.Lambda == 1 || (p.high.Identity() && p.low.Identity())
}

// Fit embeds the observations described by the pair weights and squared
// dissimilarities. initial, when non-nil, is the N×NComponents starting
// embedding; otherwise one is generated according to Config.Init.
func (p *Projector) Fit(weights, sqDistances, initial [][]float64) ([][]float64, error) {
	w, err := symFromRows("weights", weights)
	if err != nil {
		return nil, err
	}
	delta, err := dissimilarities(sqDistances)
	if err != nil {
		return nil, err
	}
	n := delta.SymmetricDim()
	if w.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: %d×%d weights for %d observations", ErrConfiguration, w.SymmetricDim(), w.SymmetricDim(), n)
	}

	var z *mat.Dense
	if initial != nil {
		z, err = denseFromRows("initial embedding", initial, n, p.Config.NComponents)
		if err != nil {
			return nil, err
		}
	} else {
		z = smapinit.InitializeEmbedding(delta, p.Config.NComponents, p.init, p.Config.Seed)
		p.logger.Debug("initial embedding", "method", p.init)
	}

	filtered := p.filter(delta)

	cfg := smacof.Config{
		Tolerance:        p.Config.Tolerance,
		MaxIterations:    p.Config.MaxIterations,
		NumWorkers:       p.Config.NumWorkers,
		Logger:           p.logger,
		ProgressCallback: p.Config.ProgressCallback,
	}
	res, err := smacof.Solve(w, delta, z, cfg)
	if err != nil {
		if errors.Is(err, smacof.ErrDimensionMismatch) || errors.Is(err, smacof.ErrInvalidInput) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, err
	}
	p.logger.Info("smacof converged", "iterations", res.Iterations, "stress", res.Stress)

	full, err := stress.NewFull(w, delta, filtered, p.Config.NComponents, p.Config.Lambda, p.low)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	x := flatten(z)
	value := full.Eval(x, nil)
	if !p.Metric() && p.Config.Refine != "none" {
		x, value, err = p.minimize(full, x)
		if err != nil {
			return nil, err
		}
		z = mat.NewDense(n, p.Config.NComponents, x)
	}

	p.weights = w
	p.delta = delta
	p.filtered = filtered
	p.embedding = z
	p.totalWeight = totalWeight(w)
	p.stress = value / p.totalWeight
	p.logger.Info("sketch-map fitted", "points", n, "stress", p.stress)

	return toRows(z), nil
}

// Load installs an existing map (for example one produced by an earlier
// Fit) so that new observations can be projected into it. weights may be
// nil for uniform pair weights.
func (p *Projector) Load(weights, sqDistances, embedding [][]float64) error {
	delta, err := dissimilarities(sqDistances)
	if err != nil {
		return err
	}
	n := delta.SymmetricDim()
	if weights == nil {
		weights = UniformWeights(n)
	}
	w, err := symFromRows("weights", weights)
	if err != nil {
		return err
	}
	if w.SymmetricDim() != n {
		return fmt.Errorf("%w: %d×%d weights for %d observations", ErrConfiguration, w.SymmetricDim(), w.SymmetricDim(), n)
	}
	z, err := denseFromRows("embedding", embedding, n, p.Config.NComponents)
	if err != nil {
		return err
	}

	p.weights = w
	p.delta = delta
	p.filtered = p.filter(delta)
	p.embedding = z
	p.totalWeight = totalWeight(w)
	if p.totalWeight > 0 {
		full, err := p.FullObjective()
		if err != nil {
			return err
		}
		p.stress = full.Eval(flatten(z), nil) / p.totalWeight
	}
	return nil
}

// Project places a new observation into the fitted map. sqDistances holds
// its squared dissimilarity to each fitted observation and weights the
// importance of each of them (nil = uniform).
func (p *Projector) Project(sqDistances, weights []float64) ([]float64, error) {
	if p.embedding == nil {
		return nil, ErrNotFitted
	}
	m, _ := p.embedding.Dims()
	if len(sqDistances) != m {
		return nil, fmt.Errorf("%w: %d distances for a map of %d points", ErrConfiguration, len(sqDistances), m)
	}
	if weights == nil {
		weights = make([]float64, m)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != m {
		return nil, fmt.Errorf("%w: %d weights for a map of %d points", ErrConfiguration, len(weights), m)
	}

	targets := make([]float64, m)
	filtered := make([]float64, m)
	nearest := -1
	for i, sq := range sqDistances {
		if sq < 0 || math.IsNaN(sq) || math.IsInf(sq, 0) {
			return nil, fmt.Errorf("%w: squared distance %d is %g", ErrConfiguration, i, sq)
		}
		targets[i] = math.Sqrt(sq)
		filtered[i], _ = p.high.Eval(targets[i])
		if weights[i] >= p.Config.Epsilon && (nearest < 0 || targets[i] < targets[nearest]) {
			nearest = i
		}
	}
	if nearest < 0 {
		return nil, fmt.Errorf("%w: every reference weight is below epsilon", ErrConfiguration)
	}

	obj, err := stress.NewPartial(p.embedding, targets, filtered, weights, p.Config.Lambda, p.low, p.Config.Epsilon)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	start := append([]float64(nil), p.embedding.RawRowView(nearest)...)

	x, _, err := p.minimize(obj, start)
	if err != nil {
		return nil, err
	}
	return x, nil
}

// ProjectAll projects several observations, one row of sqDistances each.
func (p *Projector) ProjectAll(sqDistances [][]float64, weights []float64) ([][]float64, error) {
	out := make([][]float64, len(sqDistances))
	for i, row := range sqDistances {
		x, err := p.Project(row, weights)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		out[i] = x
	}
	return out, nil
}

// FullObjective returns the joint stress over the fitted observations, for
// use with an external minimiser. Coordinates are laid out row-major.
func (p *Projector) FullObjective() (stress.Objective, error) {
	if p.delta == nil {
		return nil, ErrNotFitted
	}
	full, err := stress.NewFull(p.weights, p.delta, p.filtered, p.Config.NComponents, p.Config.Lambda, p.low)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return full, nil
}

// Embedding returns a copy of the fitted embedding.
func (p *Projector) Embedding() [][]float64 {
	if p.embedding == nil {
		return nil
	}
	return toRows(p.embedding)
}

// Stress returns the fitted stress divided by the total pair weight.
func (p *Projector) Stress() float64 {
	return p.stress
}

// filter applies the high-dimensional filter to every dissimilarity.
func (p *Projector) filter(delta *mat.SymDense) *mat.SymDense {
	n := delta.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			f, _ := p.high.Eval(delta.At(i, j))
			out.SetSym(i, j, f)
		}
	}
	return out
}
