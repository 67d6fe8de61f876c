package transform

import (
	"fmt"
	"math"
)

// rationalLimit is the distance from s = 1 below which the rational
// filter switches to its analytic limit.
const rationalLimit = 1e-8

// identity leaves distances unchanged.
type identity struct{}

func newIdentity(p Params) (Func, error) {
	if err := p.done("IDENTITY"); err != nil {
		return nil, err
	}
	return identity{}, nil
}

func (identity) Eval(r float64) (float64, float64) { return r, 1 }
func (identity) String() string                    { return "IDENTITY" }

// shifted holds the R_0/D_0 scaling shared by all switching families.
// s = (r - D_0) / R_0
type shifted struct {
	r0, d0 float64
}

func newShifted(family string, p Params) (shifted, error) {
	r0, err := p.require(family, "R_0")
	if err != nil {
		return shifted{}, err
	}
	if err := positive(family, "R_0", r0); err != nil {
		return shifted{}, err
	}
	return shifted{r0: r0, d0: p.take("D_0", 0)}, nil
}

// scale returns s and reports whether r lies beyond D_0.
func (s shifted) scale(r float64) (float64, bool) {
	if r <= s.d0 {
		return 0, false
	}
	return (r - s.d0) / s.r0, true
}

func (s shifted) describe(family string) string {
	desc := family + " R_0=" + formatFloat(s.r0)
	if s.d0 != 0 {
		desc += " D_0=" + formatFloat(s.d0)
	}
	return desc
}

// rational is f = (1 - s^NN) / (1 - s^MM).
type rational struct {
	shifted
	nn, mm int
}

func newRational(p Params) (Func, error) {
	sh, err := newShifted("RATIONAL", p)
	if err != nil {
		return nil, err
	}
	nn := p.take("NN", 6)
	mm := p.take("MM", 0)
	if mm == 0 {
		mm = 2 * nn
	}
	if err := p.done("RATIONAL"); err != nil {
		return nil, err
	}
	if nn != math.Trunc(nn) || mm != math.Trunc(mm) {
		return nil, fmt.Errorf("%w: RATIONAL NN and MM must be integers", ErrInvalidDescriptor)
	}
	if err := positive("RATIONAL", "NN", nn); err != nil {
		return nil, err
	}
	if err := positive("RATIONAL", "MM", mm); err != nil {
		return nil, err
	}
	if nn == mm {
		return nil, fmt.Errorf("%w: RATIONAL NN and MM must differ", ErrInvalidDescriptor)
	}
	return rational{shifted: sh, nn: int(nn), mm: int(mm)}, nil
}

func (f rational) Eval(r float64) (float64, float64) {
	s, beyond := f.scale(r)
	if !beyond {
		return 1, 0
	}
	n, m := float64(f.nn), float64(f.mm)
	if math.Abs(s-1) < rationalLimit {
		// first-order expansion around s = 1
		return n / m, 0.5 * n * (n - m) / m / f.r0
	}
	sn1 := math.Pow(s, n-1)
	sm1 := math.Pow(s, m-1)
	num := 1 - sn1*s
	den := 1 - sm1*s
	val := num / den
	dfds := (-n*sn1*den + m*sm1*num) / (den * den)
	return val, dfds / f.r0
}

func (f rational) String() string {
	return fmt.Sprintf("%s NN=%d MM=%d", f.describe("RATIONAL"), f.nn, f.mm)
}

// exponential is f = exp(-s).
type exponential struct {
	shifted
}

func newExponential(p Params) (Func, error) {
	sh, err := newShifted("EXP", p)
	if err != nil {
		return nil, err
	}
	if err := p.done("EXP"); err != nil {
		return nil, err
	}
	return exponential{sh}, nil
}

func (f exponential) Eval(r float64) (float64, float64) {
	s, beyond := f.scale(r)
	if !beyond {
		return 1, 0
	}
	e := math.Exp(-s)
	return e, -e / f.r0
}

func (f exponential) String() string { return f.describe("EXP") }

// gaussian is f = exp(-s^2 / 2).
type gaussian struct {
	shifted
}

func newGaussian(p Params) (Func, error) {
	sh, err := newShifted("GAUSSIAN", p)
	if err != nil {
		return nil, err
	}
	if err := p.done("GAUSSIAN"); err != nil {
		return nil, err
	}
	return gaussian{sh}, nil
}

func (f gaussian) Eval(r float64) (float64, float64) {
	s, beyond := f.scale(r)
	if !beyond {
		return 1, 0
	}
	e := math.Exp(-0.5 * s * s)
	return e, -s * e / f.r0
}

func (f gaussian) String() string { return f.describe("GAUSSIAN") }

// smap is the sketch-map sigmoid f = (1 + (2^(A/B) - 1) s^A)^(-B/A).
// f(R_0) = 1/2 independently of A and B.
type smap struct {
	shifted
	a, b float64
	c    float64
}

func newSMAP(p Params) (Func, error) {
	sh, err := newShifted("SMAP", p)
	if err != nil {
		return nil, err
	}
	a, err := p.require("SMAP", "A")
	if err != nil {
		return nil, err
	}
	b, err := p.require("SMAP", "B")
	if err != nil {
		return nil, err
	}
	if err := p.done("SMAP"); err != nil {
		return nil, err
	}
	if err := positive("SMAP", "A", a); err != nil {
		return nil, err
	}
	if err := positive("SMAP", "B", b); err != nil {
		return nil, err
	}
	return smap{shifted: sh, a: a, b: b, c: math.Pow(2, a/b) - 1}, nil
}

func (f smap) Eval(r float64) (float64, float64) {
	s, beyond := f.scale(r)
	if !beyond {
		return 1, 0
	}
	sa1 := math.Pow(s, f.a-1)
	base := 1 + f.c*sa1*s
	val := math.Pow(base, -f.b/f.a)
	dfds := -f.b * f.c * sa1 * val / base
	return val, dfds / f.r0
}

func (f smap) String() string {
	return fmt.Sprintf("%s A=%s B=%s", f.describe("SMAP"), formatFloat(f.a), formatFloat(f.b))
}
