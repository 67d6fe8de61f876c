package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/nozzle/sketchmap"
)

// settings is everything a command needs to build a projector.
type settings struct {
	Model  sketchmap.Config
	Metric string
}

func defaultSettings() settings {
	return settings{Model: sketchmap.DefaultConfig(), Metric: "euclidean"}
}

// fileConfig is the TOML layout of a --config file. Absent keys keep
// their defaults.
//
//	metric = "euclidean"
//	high = "SMAP R_0=4 A=8 B=2"
//	low = "SMAP R_0=4 A=2 B=2"
//	lambda = 0.1
//
//	[smacof]
//	tolerance = 1e-6
//	max_iterations = 1000
type fileConfig struct {
	Metric     *string  `toml:"metric"`
	High       *string  `toml:"high"`
	Low        *string  `toml:"low"`
	Lambda     *float64 `toml:"lambda"`
	Epsilon    *float64 `toml:"epsilon"`
	Components *int     `toml:"components"`
	Init       *string  `toml:"init"`
	Seed       *int64   `toml:"seed"`
	Workers    *int     `toml:"workers"`

	Smacof struct {
		Tolerance     *float64 `toml:"tolerance"`
		MaxIterations *int     `toml:"max_iterations"`
	} `toml:"smacof"`

	Refine struct {
		Method     *string `toml:"method"`
		Iterations *int    `toml:"iterations"`
	} `toml:"refine"`
}

// loadConfig decodes a TOML file on top of s. Unknown keys are an error so
// that typos do not silently fall back to defaults.
func loadConfig(path string, s *settings) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	fc.apply(s)
	return nil
}

func (fc fileConfig) apply(s *settings) {
	set(&s.Metric, fc.Metric)
	set(&s.Model.HighDim, fc.High)
	set(&s.Model.LowDim, fc.Low)
	set(&s.Model.Lambda, fc.Lambda)
	set(&s.Model.Epsilon, fc.Epsilon)
	set(&s.Model.NComponents, fc.Components)
	set(&s.Model.Init, fc.Init)
	set(&s.Model.Seed, fc.Seed)
	set(&s.Model.NumWorkers, fc.Workers)
	set(&s.Model.Tolerance, fc.Smacof.Tolerance)
	set(&s.Model.MaxIterations, fc.Smacof.MaxIterations)
	set(&s.Model.Refine, fc.Refine.Method)
	set(&s.Model.RefineIterations, fc.Refine.Iterations)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// modelFlags are the model settings shared by fit and project.
type modelFlags struct {
	config string
	values settings
}

func (m *modelFlags) register(cmd *cobra.Command) {
	m.values = defaultSettings()
	d := &m.values

	cmd.Flags().StringVarP(&m.config, "config", "c", "", "TOML file with model settings")
	cmd.Flags().StringVar(&d.Metric, "metric", d.Metric, "feature distance metric: euclidean, manhattan, chebyshev, cosine, correlation")
	cmd.Flags().StringVar(&d.Model.HighDim, "high", d.Model.HighDim, "high-dimensional filter descriptor")
	cmd.Flags().StringVar(&d.Model.LowDim, "low", d.Model.LowDim, "low-dimensional filter descriptor")
	cmd.Flags().Float64Var(&d.Model.Lambda, "lambda", d.Model.Lambda, "mixing parameter: 0 = filtered stress, 1 = metric stress")
	cmd.Flags().IntVarP(&d.Model.NComponents, "components", "d", d.Model.NComponents, "embedding dimensions")
	cmd.Flags().Float64Var(&d.Model.Tolerance, "tol", d.Model.Tolerance, "SMACOF stress-change tolerance")
	cmd.Flags().IntVar(&d.Model.MaxIterations, "max-iter", d.Model.MaxIterations, "SMACOF iteration cap")
	cmd.Flags().StringVar(&d.Model.Init, "init-method", d.Model.Init, "initial embedding: classical, random")
	cmd.Flags().Int64Var(&d.Model.Seed, "seed", d.Model.Seed, "random seed")
	cmd.Flags().StringVar(&d.Model.Refine, "refine", d.Model.Refine, "minimiser: lbfgs, bfgs, cg, none")
	cmd.Flags().IntVar(&d.Model.NumWorkers, "workers", d.Model.NumWorkers, "parallel workers (0 = all CPUs)")
}

// flagNames maps each model flag to the field it sets, so flags given on
// the command line can be re-applied over the config file.
var flagNames = map[string]func(dst, src *settings){
	"metric":      func(dst, src *settings) { dst.Metric = src.Metric },
	"high":        func(dst, src *settings) { dst.Model.HighDim = src.Model.HighDim },
	"low":         func(dst, src *settings) { dst.Model.LowDim = src.Model.LowDim },
	"lambda":      func(dst, src *settings) { dst.Model.Lambda = src.Model.Lambda },
	"components":  func(dst, src *settings) { dst.Model.NComponents = src.Model.NComponents },
	"tol":         func(dst, src *settings) { dst.Model.Tolerance = src.Model.Tolerance },
	"max-iter":    func(dst, src *settings) { dst.Model.MaxIterations = src.Model.MaxIterations },
	"init-method": func(dst, src *settings) { dst.Model.Init = src.Model.Init },
	"seed":        func(dst, src *settings) { dst.Model.Seed = src.Model.Seed },
	"refine":      func(dst, src *settings) { dst.Model.Refine = src.Model.Refine },
	"workers":     func(dst, src *settings) { dst.Model.NumWorkers = src.Model.NumWorkers },
}

// resolve layers defaults, the config file and the flags that were set.
func (m *modelFlags) resolve(cmd *cobra.Command) (settings, error) {
	if m.config == "" {
		return m.values, nil
	}
	s := defaultSettings()
	if err := loadConfig(m.config, &s); err != nil {
		return settings{}, err
	}
	for name, copyField := range flagNames {
		if cmd.Flags().Changed(name) {
			copyField(&s, &m.values)
		}
	}
	return s, nil
}
