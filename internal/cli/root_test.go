package cli

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planarCSV returns points on a tilted plane in 3D, one per line.
func planarCSV(points [][2]float64) string {
	var b strings.Builder
	for _, p := range points {
		fmt.Fprintf(&b, "%g,%g,%g\n", p[0], p[1], 0.5*p[0]-0.25*p[1])
	}
	return b.String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	c := New(&buf, LogDebug)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(&buf)
	root.SetErr(&buf)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(&bytes.Buffer{}, LogInfo).RootCommand()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Contains(t, names, "fit")
	assert.Contains(t, names, "project")
}

func TestFitAndProject(t *testing.T) {
	dir := t.TempDir()
	reference := [][2]float64{{0, 0}, {2, 0}, {0, 2}, {2, 2}, {1, 3}, {3, 1}, {-1, 1}, {1, -1}}
	input := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(input, []byte(planarCSV(reference)), 0o644))
	config := filepath.Join(dir, "metric.toml")
	require.NoError(t, os.WriteFile(config, []byte("high = \"IDENTITY\"\nlow = \"IDENTITY\"\nlambda = 1\n"), 0o644))

	embedding := filepath.Join(dir, "emb.csv")
	plotFile := filepath.Join(dir, "emb.png")
	out, err := execute(t, "fit", "-i", input, "-o", embedding, "-c", config, "--plot", plotFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "smacof converged")

	emb, err := readCSV(embedding)
	require.NoError(t, err)
	require.Len(t, emb, len(reference))
	assert.Len(t, emb[0], 2)
	info, err := os.Stat(plotFile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	// Projecting a reference point must land on its own image.
	query := filepath.Join(dir, "new.csv")
	require.NoError(t, os.WriteFile(query, []byte(planarCSV(reference[3:4])), 0o644))
	projected := filepath.Join(dir, "proj.csv")
	out, err = execute(t, "project", "-r", input, "-e", embedding, "-i", query, "-o", projected, "-c", config)
	require.NoError(t, err, out)

	got, err := readCSV(projected)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0, math.Hypot(got[0][0]-emb[3][0], got[0][1]-emb[3][1]), 1e-3)
}

func TestFitDefaultOutputAndWeights(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.csv")
	points := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {5, 5}, {6, 5}, {5, 6}, {6, 6}}
	require.NoError(t, os.WriteFile(input, []byte(planarCSV(points)), 0o644))
	weights := filepath.Join(dir, "w.csv")
	require.NoError(t, os.WriteFile(weights, []byte("1\n1\n1\n1\n2\n2\n2\n2\n"), 0o644))

	out, err := execute(t, "fit", "-i", input, "-w", weights, "--high", "SMAP R_0=2 A=4 B=2", "--low", "SMAP R_0=2 A=2 B=2")
	require.NoError(t, err, out)

	emb, err := readCSV(filepath.Join(dir, "data.embedding.csv"))
	require.NoError(t, err)
	assert.Len(t, emb, len(points))
}

func TestFitErrors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(input, []byte("0,0\n1,0\n0,1\n"), 0o644))
	weights := filepath.Join(dir, "w.csv")
	require.NoError(t, os.WriteFile(weights, []byte("1\n1\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"missing input", []string{"fit"}},
		{"bad lambda", []string{"fit", "-i", input, "--lambda", "2"}},
		{"bad filter", []string{"fit", "-i", input, "--high", "SMAP"}},
		{"bad metric", []string{"fit", "-i", input, "--metric", "hamming"}},
		{"weight count", []string{"fit", "-i", input, "-w", weights}},
		{"non-square distances", []string{"fit", "-i", input, "--distances"}},
		{"missing config", []string{"fit", "-i", input, "-c", filepath.Join(dir, "none.toml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestProjectBeforeFitFiles(t *testing.T) {
	_, err := execute(t, "project", "-i", "new.csv")
	assert.Error(t, err)
}
