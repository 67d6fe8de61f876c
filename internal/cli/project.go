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

// projectOptions holds the file arguments of the project command.
type projectOptions struct {
	reference string
	embedding string
	input     string
	distances bool
	weights   string
	output    string
	plot      string
}

// projectCommand creates the project command, which places new
// observations into an existing embedding.
func (c *CLI) projectCommand() *cobra.Command {
	var (
		opts  projectOptions
		model modelFlags
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project new observations into an existing embedding",
		Long: `Project new observations into an existing embedding.

--reference holds the observations the embedding was fitted on and
--embedding their coordinates (as written by 'fit'). Every row of --input is
placed by minimising its stress against the reference points only, so the map
itself does not move. Use the same filters and lambda as the fit.

With --distances, --reference is the N×N squared-distance matrix of the
reference points and each row of --input holds the N squared distances from
a new observation to them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := model.resolve(cmd)
			if err != nil {
				return err
			}
			return c.runProject(cmd.Context(), opts, s)
		},
	}

	cmd.Flags().StringVarP(&opts.reference, "reference", "r", "", "CSV of reference observations (required)")
	cmd.Flags().StringVarP(&opts.embedding, "embedding", "e", "", "CSV of reference coordinates (required)")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "CSV of observations to project (required)")
	cmd.Flags().BoolVar(&opts.distances, "distances", false, "inputs are squared distances rather than features")
	cmd.Flags().StringVarP(&opts.weights, "weights", "w", "", "CSV with one weight per reference observation")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output CSV (default: <input>.projected.csv)")
	cmd.Flags().StringVar(&opts.plot, "plot", "", "write a scatter plot of the projected points")
	for _, name := range []string{"reference", "embedding", "input"} {
		_ = cmd.MarkFlagRequired(name)
	}
	model.register(cmd)

	return cmd
}

// runProject installs the reference map and projects every input row.
func (c *CLI) runProject(ctx context.Context, opts projectOptions, s settings) error {
	prog := newProgress(c.Logger)

	refSq, err := loadSquaredDistances(opts.reference, opts.distances, s.Metric)
	if err != nil {
		return err
	}
	embedding, err := readCSV(opts.embedding)
	if err != nil {
		return err
	}
	queries, err := loadQueries(opts, s.Metric)
	if err != nil {
		return err
	}

	var pairWeights [][]float64
	var refWeights []float64
	if opts.weights != "" {
		if refWeights, err = readColumn(opts.weights); err != nil {
			return err
		}
		if len(refWeights) != len(refSq) {
			return fmt.Errorf("%s: %d weights for %d reference observations", opts.weights, len(refWeights), len(refSq))
		}
		pairWeights = sketchmap.FrameWeights(refWeights)
	}

	cfg := s.Model
	cfg.Logger = c.Logger
	p, err := sketchmap.New(cfg)
	if err != nil {
		return err
	}
	if err := p.Load(pairWeights, refSq, embedding); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	c.Logger.Debug("loaded map", "points", len(embedding), "stress", p.Stress())

	projected := make([][]float64, len(queries))
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if projected[i], err = p.Project(q, refWeights); err != nil {
			return fmt.Errorf("project row %d: %w", i, err)
		}
	}

	output := opts.output
	if output == "" {
		output = strings.TrimSuffix(opts.input, filepath.Ext(opts.input)) + ".projected.csv"
	}
	if err := writeCSV(output, projected); err != nil {
		return fmt.Errorf("write output %s: %w", output, err)
	}
	c.Logger.Info("wrote projection", "file", output)

	if opts.plot != "" {
		if err := savePlot(opts.plot, "sketch-map projection", projected); err != nil {
			return err
		}
		c.Logger.Info("wrote plot", "file", opts.plot)
	}

	prog.done(fmt.Sprintf("Projected %d points", len(queries)))
	return nil
}

// loadQueries returns the squared distances from each input row to the
// reference observations.
func loadQueries(opts projectOptions, metric string) ([][]float64, error) {
	rows, err := readCSV(opts.input)
	if err != nil {
		return nil, err
	}
	if opts.distances {
		return rows, nil
	}
	reference, err := readCSV(opts.reference)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if out[i], err = distance.SquaredTo(row, reference, metric); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", opts.input, i, err)
		}
	}
	return out, nil
}
