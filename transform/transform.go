// Package transform provides the monotone distance filters used by sketch-map.
//
// A filter maps a raw distance r to a filtered value f(r) and its derivative
// df/dr. Two filters are configured per projector: one applied to the
// high-dimensional dissimilarities and one to the embedded distances.
//
// Filters are described by plain-text descriptors such as
//
//	SMAP R_0=4 A=3 B=2
//	RATIONAL R_0=1.5 NN=6 MM=12
//	IDENTITY
//
// and are handed around as immutable Handle values, so one configured filter
// can be shared by several projectors without copying its parameters.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidDescriptor is returned when a descriptor is missing or cannot be parsed.
var ErrInvalidDescriptor = errors.New("transform: invalid descriptor")

// Func is a monotone distance filter.
type Func interface {
	// Eval returns f(r) and df/dr.
	Eval(r float64) (f, df float64)
	// String returns the canonical descriptor of the filter.
	String() string
}

// Constructor builds a filter from its parsed parameters.
type Constructor func(params Params) (Func, error)

// Registry maps family keywords to their constructors.
var Registry = map[string]Constructor{
	"IDENTITY": newIdentity,
	"RATIONAL": newRational,
	"EXP":      newExponential,
	"GAUSSIAN": newGaussian,
	"SMAP":     newSMAP,
}

// Get returns the constructor for the given family keyword.
func Get(name string) (Constructor, bool) {
	c, ok := Registry[strings.ToUpper(name)]
	return c, ok
}

// Families returns the registered family keywords in sorted order.
func Families() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle is an immutable reference to a configured filter.
// Copying a Handle shares the underlying filter; there is no way to modify it.
type Handle struct {
	fn Func
}

// NewHandle wraps fn in a Handle.
func NewHandle(fn Func) Handle {
	return Handle{fn: fn}
}

// Parse builds a Handle from a descriptor.
func Parse(descriptor string) (Handle, error) {
	fields := strings.Fields(descriptor)
	if len(fields) == 0 {
		return Handle{}, fmt.Errorf("%w: empty descriptor", ErrInvalidDescriptor)
	}

	ctor, ok := Get(fields[0])
	if !ok {
		return Handle{}, fmt.Errorf("%w: unknown family %q (want one of %s)",
			ErrInvalidDescriptor, fields[0], strings.Join(Families(), ", "))
	}

	params := make(Params, len(fields)-1)
	for _, field := range fields[1:] {
		key, value, found := strings.Cut(field, "=")
		if !found || key == "" {
			return Handle{}, fmt.Errorf("%w: expected KEY=VALUE, got %q", ErrInvalidDescriptor, field)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Handle{}, fmt.Errorf("%w: parameter %s: %v", ErrInvalidDescriptor, key, err)
		}
		params[strings.ToUpper(key)] = v
	}

	fn, err := ctor(params)
	if err != nil {
		return Handle{}, err
	}
	return Handle{fn: fn}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(descriptor string) Handle {
	h, err := Parse(descriptor)
	if err != nil {
		panic(err)
	}
	return h
}

// Eval returns f(r) and df/dr. Evaluating a zero Handle panics.
func (h Handle) Eval(r float64) (f, df float64) {
	return h.fn.Eval(r)
}

// IsZero reports whether the handle holds no filter.
func (h Handle) IsZero() bool {
	return h.fn == nil
}

// Identity reports whether the handle holds the identity filter.
func (h Handle) Identity() bool {
	_, ok := h.fn.(identity)
	return ok
}

// String returns the canonical descriptor, or "<unset>" for a zero Handle.
func (h Handle) String() string {
	if h.fn == nil {
		return "<unset>"
	}
	return h.fn.String()
}

// Params holds parsed descriptor parameters keyed by upper-case name.
type Params map[string]float64

// take removes and returns a parameter, falling back to def when absent.
func (p Params) take(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	delete(p, key)
	return v
}

// require removes and returns a mandatory parameter.
func (p Params) require(family, key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s requires %s", ErrInvalidDescriptor, family, key)
	}
	delete(p, key)
	return v, nil
}

// done fails if any parameter was not consumed by the constructor.
func (p Params) done(family string) error {
	if len(p) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Errorf("%w: %s does not take %s", ErrInvalidDescriptor, family, strings.Join(keys, ", "))
}

func positive(family, key string, v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%w: %s %s must be positive, got %g", ErrInvalidDescriptor, family, key, v)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
