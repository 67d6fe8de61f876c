package sketchmap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/nozzle/sketchmap/stress"
)

// minimizer maps a Config.Refine name to a gonum method. "none" maps to
// L-BFGS, which is still needed for out-of-sample projection.
func minimizer(name string) (optimize.Method, error) {
	switch name {
	case "", "lbfgs", "none":
		return &optimize.LBFGS{}, nil
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "cg":
		return &optimize.CG{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown minimizer %q (want lbfgs, bfgs, cg or none)", ErrConfiguration, name)
	}
}

// minimize drives obj from x with the configured gonum method. A minimizer
// error is tolerated when the point it stopped at is finite and no worse
// than the start, since line searches routinely give up close to a minimum.
func (p *Projector) minimize(obj stress.Objective, x []float64) ([]float64, float64, error) {
	method, err := minimizer(p.Config.Refine)
	if err != nil {
		return nil, 0, err
	}
	settings := &optimize.Settings{
		MajorIterations: p.Config.RefineIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   p.Config.Tolerance * 1e-3,
			Relative:   p.Config.Tolerance * 1e-3,
			Iterations: 20,
		},
	}

	start := obj.Eval(x, nil)
	res, err := optimize.Minimize(stress.Problem(obj), x, settings, method)
	if res == nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrRefinement, err)
	}
	if err != nil {
		if !finite(res.X) || math.IsNaN(res.F) || res.F > start {
			return nil, 0, fmt.Errorf("%w: %w", ErrRefinement, err)
		}
		p.logger.Warn("minimizer stopped early", "err", err, "stress", res.F)
	}
	if res.F > start {
		// Never hand back a point worse than the start.
		return x, start, nil
	}
	p.logger.Debug("minimizer finished",
		"status", res.Status, "iterations", res.Stats.MajorIterations,
		"start", start, "stress", res.F)
	return res.X, res.F, nil
}

func finite(x []float64) bool {
	return !floats.HasNaN(x) && !math.IsInf(floats.Max(x), 1) && !math.IsInf(floats.Min(x), -1)
}
