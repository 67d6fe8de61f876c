package sketchmap

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/nozzle/sketchmap/distance"
	"github.com/nozzle/sketchmap/smacof"
	"github.com/nozzle/sketchmap/stress"
)

// generateBlobs generates n clusters of points for testing.
func generateBlobs(nSamples, nClusters, nFeatures int, seed int64) [][]float64 {
	data := make([][]float64, nSamples)
	samplesPerCluster := nSamples / nClusters

	// Simple LCG for reproducibility
	rng := seed
	nextFloat := func() float64 {
		rng = (rng*6364136223846793005 + 1442695040888963407) & 0x7FFFFFFF
		return float64(rng) / float64(0x7FFFFFFF)
	}

	for i := 0; i < nSamples; i++ {
		data[i] = make([]float64, nFeatures)
		cluster := min(i/samplesPerCluster, nClusters-1)
		centerOffset := float64(cluster * 6)

		for j := 0; j < nFeatures; j++ {
			u1 := math.Max(nextFloat(), 0.001)
			u2 := nextFloat()
			noise := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
			data[i][j] = centerOffset + 0.5*noise
		}
	}

	return data
}

func squared(t testing.TB, data [][]float64) [][]float64 {
	t.Helper()
	sq, err := distance.SquaredMatrix(data, "euclidean")
	require.NoError(t, err)
	return distance.ToRows(sq)
}

func assertFinite(t *testing.T, embedding [][]float64) {
	t.Helper()
	for i, point := range embedding {
		for j, val := range point {
			if math.IsNaN(val) || math.IsInf(val, 0) {
				t.Errorf("Non-finite value at [%d][%d]: %v", i, j, val)
			}
		}
	}
}

func metricConfig() Config {
	config := DefaultConfig()
	config.HighDim = "IDENTITY"
	config.LowDim = "IDENTITY"
	config.Lambda = 1
	return config
}

func TestFitMetricSeparatesClusters(t *testing.T) {
	data := generateBlobs(60, 3, 5, 42)

	p, err := New(metricConfig())
	require.NoError(t, err)
	embedding, err := p.Fit(UniformWeights(len(data)), squared(t, data), nil)
	require.NoError(t, err)

	require.Len(t, embedding, len(data))
	assert.Len(t, embedding[0], 2)
	assertFinite(t, embedding)

	var intra, inter float64
	var nIntra, nInter int
	for i := range embedding {
		for j := i + 1; j < len(embedding); j++ {
			d := floats.Distance(embedding[i], embedding[j], 2)
			if i/20 == j/20 {
				intra += d
				nIntra++
			} else {
				inter += d
				nInter++
			}
		}
	}
	t.Logf("Avg intra-cluster distance: %f", intra/float64(nIntra))
	t.Logf("Avg inter-cluster distance: %f", inter/float64(nInter))
	assert.Greater(t, inter/float64(nInter), 2*intra/float64(nIntra))
}

func TestFitSketchMapRefinementImproves(t *testing.T) {
	data := generateBlobs(45, 3, 6, 7)
	sq := squared(t, data)
	w := UniformWeights(len(data))

	config := DefaultConfig()
	config.Refine = "none"
	base, err := New(config)
	require.NoError(t, err)
	_, err = base.Fit(w, sq, nil)
	require.NoError(t, err)

	for _, method := range []string{"lbfgs", "cg"} {
		t.Run(method, func(t *testing.T) {
			config := DefaultConfig()
			config.Refine = method
			p, err := New(config)
			require.NoError(t, err)
			embedding, err := p.Fit(w, sq, nil)
			require.NoError(t, err)
			assertFinite(t, embedding)

			t.Logf("smacof only: %g, refined: %g", base.Stress(), p.Stress())
			assert.LessOrEqual(t, p.Stress(), base.Stress()+1e-12)
		})
	}
}

func TestLambdaZeroIdentityMatchesMetric(t *testing.T) {
	data := generateBlobs(30, 2, 4, 3)
	sq := squared(t, data)
	w := UniformWeights(len(data))

	run := func(config Config) ([][]float64, []float64) {
		var trajectory []float64
		config.Init = "random"
		config.MaxIterations = 10000
		config.ProgressCallback = func(_ int, s float64) { trajectory = append(trajectory, s) }
		p, err := New(config)
		require.NoError(t, err)
		require.True(t, p.Metric())
		embedding, err := p.Fit(w, sq, nil)
		require.NoError(t, err)
		return embedding, trajectory
	}

	sketch := DefaultConfig()
	sketch.HighDim = "IDENTITY"
	sketch.LowDim = "IDENTITY"
	sketch.Lambda = 0

	e1, t1 := run(sketch)
	e2, t2 := run(metricConfig())
	assert.Equal(t, t2, t1)
	assert.Equal(t, e2, e1)
}

func TestIterationCapSurfacesError(t *testing.T) {
	data := generateBlobs(20, 2, 4, 5)
	config := DefaultConfig()
	config.Init = "random"
	config.MaxIterations = 1

	p, err := New(config)
	require.NoError(t, err)
	embedding, err := p.Fit(UniformWeights(len(data)), squared(t, data), nil)
	require.Error(t, err)
	assert.Nil(t, embedding)
	assert.True(t, errors.Is(err, ErrNotConverged))

	var nc *smacof.NonConvergenceError
	assert.True(t, errors.As(err, &nc))
	assert.Nil(t, p.Embedding())
}

func TestConfigurationErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"lambda above one":   func(c *Config) { c.Lambda = 1.5 },
		"lambda below zero":  func(c *Config) { c.Lambda = -0.1 },
		"lambda NaN":         func(c *Config) { c.Lambda = math.NaN() },
		"bad high filter":    func(c *Config) { c.HighDim = "SMAP R_0=4" },
		"bad low filter":     func(c *Config) { c.LowDim = "SIGMOID" },
		"missing filter":     func(c *Config) { c.LowDim = "" },
		"no components":      func(c *Config) { c.NComponents = 0 },
		"unknown init":       func(c *Config) { c.Init = "spectral" },
		"unknown minimizer":  func(c *Config) { c.Refine = "newton" },
		"negative epsilon":   func(c *Config) { c.Epsilon = -1 },
		"reuse without peer": func(c *Config) { c.HighDim, c.LowDim = "", "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(&config)
			_, err := New(config)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestFitShapeErrors(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	sq := [][]float64{{0, 1, 4}, {1, 0, 1}, {4, 1, 0}}
	cases := map[string]func() error{
		"weights size": func() error {
			_, err := p.Fit(UniformWeights(2), sq, nil)
			return err
		},
		"ragged distances": func() error {
			_, err := p.Fit(UniformWeights(3), [][]float64{{0, 1, 4}, {1, 0}, {4, 1, 0}}, nil)
			return err
		},
		"asymmetric distances": func() error {
			_, err := p.Fit(UniformWeights(3), [][]float64{{0, 1, 4}, {2, 0, 1}, {4, 1, 0}}, nil)
			return err
		},
		"negative distance": func() error {
			_, err := p.Fit(UniformWeights(3), [][]float64{{0, -1, 4}, {-1, 0, 1}, {4, 1, 0}}, nil)
			return err
		},
		"initial rows": func() error {
			_, err := p.Fit(UniformWeights(3), sq, [][]float64{{0, 0}, {1, 1}})
			return err
		},
		"initial columns": func() error {
			_, err := p.Fit(UniformWeights(3), sq, [][]float64{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}})
			return err
		},
		"weight diagonal": func() error {
			w := UniformWeights(3)
			w[1][1] = 1
			_, err := p.Fit(w, sq, nil)
			return err
		},
	}
	for name, fit := range cases {
		t.Run(name, func(t *testing.T) {
			err := fit()
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestReuseSharesFilters(t *testing.T) {
	first, err := New(DefaultConfig())
	require.NoError(t, err)

	config := DefaultConfig()
	config.HighDim = ""
	config.LowDim = ""
	config.Reuse = first
	second, err := New(config)
	require.NoError(t, err)

	assert.Equal(t, first.HighDim().String(), second.HighDim().String())
	assert.Equal(t, first.LowDim().String(), second.LowDim().String())

	// Only the low filter is reused; the high one is configured afresh.
	config.HighDim = "GAUSSIAN R_0=2"
	third, err := New(config)
	require.NoError(t, err)
	assert.Equal(t, "GAUSSIAN R_0=2", third.HighDim().String())
	assert.Equal(t, first.LowDim().String(), third.LowDim().String())
}

func TestProjectPlacesPlanarPoint(t *testing.T) {
	// Points on a plane embed exactly in two dimensions.
	data := [][]float64{{0, 0}, {2, 0}, {0, 2}, {2, 2}, {1, 3}, {3, 1}, {-1, 1}, {1, -1}}
	p, err := New(metricConfig())
	require.NoError(t, err)
	embedding, err := p.Fit(UniformWeights(len(data)), squared(t, data), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0, p.Stress(), 1e-8)

	query := []float64{0.7, 1.2}
	sq := make([]float64, len(data))
	for i, x := range data {
		d := floats.Distance(query, x, 2)
		sq[i] = d * d
	}
	point, err := p.Project(sq, nil)
	require.NoError(t, err)
	require.Len(t, point, 2)
	for i := range data {
		assert.InDelta(t, math.Sqrt(sq[i]), floats.Distance(point, embedding[i], 2), 1e-3, "reference %d", i)
	}
}

func TestProjectTrainingPointLandsNearItself(t *testing.T) {
	data := generateBlobs(30, 3, 4, 11)
	sq := squared(t, data)
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	embedding, err := p.Fit(UniformWeights(len(data)), sq, nil)
	require.NoError(t, err)

	point, err := p.Project(sq[4], nil)
	require.NoError(t, err)

	// The projection should be closer to its own image than to any other cluster.
	own := floats.Distance(point, embedding[4], 2)
	far := floats.Distance(point, embedding[25], 2)
	assert.Less(t, own, far)
}

func TestProjectErrors(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = p.Project([]float64{1, 2}, nil)
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = p.FullObjective()
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, p.Load(nil, [][]float64{{0, 1}, {1, 0}}, [][]float64{{0, 0}, {1, 0}}))
	_, err = p.Project([]float64{1}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = p.Project([]float64{1, 1}, []float64{1})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = p.Project([]float64{1, -1}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = p.Project([]float64{1, 1}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadMatchesFit(t *testing.T) {
	data := generateBlobs(24, 2, 3, 9)
	sq := squared(t, data)
	w := UniformWeights(len(data))

	fitted, err := New(DefaultConfig())
	require.NoError(t, err)
	embedding, err := fitted.Fit(w, sq, nil)
	require.NoError(t, err)

	config := DefaultConfig()
	config.HighDim, config.LowDim = "", ""
	config.Reuse = fitted
	loaded, err := New(config)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(w, sq, embedding))
	assert.InDelta(t, fitted.Stress(), loaded.Stress(), 1e-12)

	query := sq[3]
	a, err := fitted.Project(query, nil)
	require.NoError(t, err)
	b, err := loaded.ProjectAll([][]float64{query}, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b[0])
}

func TestFullObjectiveDrivesExternalMinimizer(t *testing.T) {
	data := generateBlobs(20, 2, 3, 13)
	config := DefaultConfig()
	config.Refine = "none"
	p, err := New(config)
	require.NoError(t, err)
	embedding, err := p.Fit(UniformWeights(len(data)), squared(t, data), nil)
	require.NoError(t, err)

	obj, err := p.FullObjective()
	require.NoError(t, err)
	require.Equal(t, 40, obj.Len())

	var x []float64
	for _, row := range embedding {
		x = append(x, row...)
	}
	start := obj.Eval(x, nil)
	res, err := optimize.Minimize(stress.Problem(obj), x, nil, &optimize.BFGS{})
	if err != nil {
		t.Logf("minimizer stopped with %v", err)
	}
	require.NotNil(t, res)
	assert.LessOrEqual(t, res.F, start)
}

func TestFrameWeights(t *testing.T) {
	w := FrameWeights([]float64{1, 1, 2})
	assert.Equal(t, 0.0, w[0][0])
	assert.InDelta(t, 0.25*0.5, w[0][2], 1e-15)
	assert.Equal(t, w[2][0], w[0][2])

	uniform := FrameWeights([]float64{0, 0})
	assert.InDelta(t, 0.25, uniform[0][1], 1e-15)
}

func BenchmarkFit(b *testing.B) {
	data := generateBlobs(200, 4, 10, 42)
	sq := squared(b, data)
	w := UniformWeights(len(data))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, err := New(DefaultConfig())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := p.Fit(w, sq, nil); err != nil {
			b.Fatal(err)
		}
	}
}
