package sketchmap

import (
	"errors"

	"github.com/nozzle/sketchmap/smacof"
)

var (
	// ErrConfiguration is returned for missing or unparsable filters, a
	// mixing parameter outside [0, 1] and inconsistent input shapes. It is
	// always detected before any iteration runs.
	ErrConfiguration = errors.New("sketchmap: invalid configuration")

	// ErrNotFitted is returned by Project before Fit or Load.
	ErrNotFitted = errors.New("sketchmap: projector has no fitted map")

	// ErrRefinement is returned when the nonlinear minimizer fails without
	// improving on its starting point.
	ErrRefinement = errors.New("sketchmap: refinement failed")

	// ErrNotConverged is matched by the error returned when SMACOF reaches
	// its iteration cap. Use errors.As with *smacof.NonConvergenceError for
	// the details.
	ErrNotConverged = smacof.ErrNotConverged
)
