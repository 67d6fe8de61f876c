package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nozzle/sketchmap"
	"github.com/nozzle/sketchmap/distance"
)

// fitOptions holds the file arguments of the fit command.
type fitOptions struct {
	input     string
	distances bool
	weights   string
	init      string
	output    string
	plot      string
}

// fitCommand creates the fit command, which embeds a data set.
func (c *CLI) fitCommand() *cobra.Command {
	var (
		opts  fitOptions
		model modelFlags
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Compute a sketch-map embedding",
		Long: `Compute a sketch-map embedding of the rows of a CSV file.

Each row of --input is one observation. Squared distances between rows are
computed with --metric, or read directly when --distances is given (the input
is then an N×N matrix of squared dissimilarities).

The metric stress is minimised with SMACOF and, unless --lambda is 1 or both
filters are IDENTITY, the result is refined on the full sketch-map stress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := model.resolve(cmd)
			if err != nil {
				return err
			}
			return c.runFit(cmd.Context(), opts, s)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "CSV of observations (required)")
	cmd.Flags().BoolVar(&opts.distances, "distances", false, "input is an N×N squared-distance matrix")
	cmd.Flags().StringVarP(&opts.weights, "weights", "w", "", "CSV with one weight per observation")
	cmd.Flags().StringVar(&opts.init, "init", "", "CSV with the starting embedding")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output CSV (default: <input>.embedding.csv)")
	cmd.Flags().StringVar(&opts.plot, "plot", "", "write a scatter plot of the embedding (png, svg, pdf)")
	_ = cmd.MarkFlagRequired("input")
	model.register(cmd)

	return cmd
}

// runFit loads the inputs, fits the projector and writes the outputs.
func (c *CLI) runFit(ctx context.Context, opts fitOptions, s settings) error {
	prog := newProgress(c.Logger)

	sq, err := loadSquaredDistances(opts.input, opts.distances, s.Metric)
	if err != nil {
		return err
	}
	n := len(sq)
	c.Logger.Debug("loaded observations", "n", n, "file", opts.input)

	weights := sketchmap.UniformWeights(n)
	if opts.weights != "" {
		w, err := readColumn(opts.weights)
		if err != nil {
			return err
		}
		if len(w) != n {
			return fmt.Errorf("%s: %d weights for %d observations", opts.weights, len(w), n)
		}
		weights = sketchmap.FrameWeights(w)
	}

	var initial [][]float64
	if opts.init != "" {
		if initial, err = readCSV(opts.init); err != nil {
			return err
		}
	}

	cfg := s.Model
	cfg.Logger = c.Logger
	p, err := sketchmap.New(cfg)
	if err != nil {
		return err
	}
	embedding, err := p.Fit(weights, sq, initial)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	output := opts.output
	if output == "" {
		output = strings.TrimSuffix(opts.input, filepath.Ext(opts.input)) + ".embedding.csv"
	}
	if err := writeCSV(output, embedding); err != nil {
		return fmt.Errorf("write output %s: %w", output, err)
	}
	c.Logger.Info("wrote embedding", "file", output, "stress", p.Stress())

	if opts.plot != "" {
		title := fmt.Sprintf("sketch-map (%s / %s)", p.HighDim(), p.LowDim())
		if err := savePlot(opts.plot, title, embedding); err != nil {
			return err
		}
		c.Logger.Info("wrote plot", "file", opts.plot)
	}

	prog.done(fmt.Sprintf("Fitted %d points", n))
	return nil
}

// loadSquaredDistances reads a feature CSV and returns its squared distance
// matrix, or reads the matrix directly when isMatrix is set.
func loadSquaredDistances(filename string, isMatrix bool, metric string) ([][]float64, error) {
	data, err := readCSV(filename)
	if err != nil {
		return nil, err
	}
	if isMatrix {
		return data, nil
	}
	sq, err := distance.SquaredMatrix(data, metric)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return distance.ToRows(sq), nil
}
