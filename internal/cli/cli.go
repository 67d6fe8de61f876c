// Package cli implements the sketchmap command-line interface.
//
// # Commands
//
// The main commands are:
//   - fit: Embed a data set and write the embedding (and optionally a plot)
//   - project: Place new observations into an existing embedding
//
// Model settings come from DefaultConfig, then an optional TOML file
// (--config), then command-line flags, each layer overriding the last.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which
// includes one record per SMACOF iteration.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// appName is the application name used for display.
const appName = "sketchmap"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance logging to w at the given level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Sketch-map dimensionality reduction",
		Long: `Sketch-map embeds high-dimensional observations in a few dimensions by
minimising a stress that compares filtered distances, so that the map keeps
the structure at the scale set by the filters while letting very near and
very far pairs be compressed.`,
		SilenceUsage: true,
	}

	root.AddCommand(c.fitCommand())
	root.AddCommand(c.projectCommand())

	return root
}
