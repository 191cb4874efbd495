// Package cli is the ba_timeseries_gradients command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	stdio "io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/bids"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/gradients"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/image"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/io"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/logs"
)

// ErrLogged marks an error that was already written to the log
var ErrLogged = errors.New("error already logged")

// NewCommand returns the root command. Log records go to stderr.
func NewCommand(stderr stdio.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "ba_timeseries_gradients <bids_dir> <output_dir> <analysis_level>",
		Short: "Computes gradients for a BIDS dataset.",
		Long: "Computes connectopic gradients of a BIDS dataset: a group connectivity\n" +
			"matrix is built from every matching timeseries file and embedded with\n" +
			"diffusion maps, Laplacian eigenmaps or PCA. --input_file or --input_list\n" +
			"name the timeseries files directly instead of querying bids_dir.",
		Args:          cobra.ExactArgs(3),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.BIDSDir, opts.OutputDir, opts.AnalysisLevel = args[0], args[1], args[2]

			if opts.ConfigFile != "" {
				if err := applyConfig(cmd.Flags(), opts.ConfigFile); err != nil {
					return err
				}
			}
			opts.queryGiven = anyChanged(cmd.Flags(), queryFlags)

			logger, err := logs.New(stderr, opts.Verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := run(cmd.Context(), logger, opts); err != nil {
				logger.Error(err.Error())
				return fmt.Errorf("%w: %w", ErrLogged, err)
			}
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetErr(stderr)

	addFlags(cmd.Flags(), opts)

	return cmd
}

// Execute runs the command line with args
func Execute(ctx context.Context, args []string, stderr stdio.Writer) error {
	cmd := NewCommand(stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func run(ctx context.Context, logger *zap.Logger, opts *options) error {
	embedOpts, err := opts.validate()
	if err != nil {
		return err
	}

	logger.Debug("Getting input files...")
	files, err := findFiles(logger, opts)
	if err != nil {
		return err
	}
	outputFile := opts.outputFile()

	if opts.DryRun {
		logger.Info("Detected input files", zap.Strings("files", files))
		logger.Info("Output file", zap.String("file", outputFile))
		return nil
	}

	logger.Debug("Checking input validity.")
	if err := checkInputs(opts, files, outputFile); err != nil {
		return err
	}

	logger.Info("Calculating gradient map...")
	builder := gradients.NewBuilder(
		gradients.WithLogger(logger),
		gradients.WithWorkers(opts.Workers),
	)
	out, err := builder.Compute(ctx, files, opts.Parcellation, embedOpts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	logger.Info("Saving gradient map", zap.String("file", outputFile))
	if err := io.Save(out.Gradients, out.Lambdas, outputFile); err != nil {
		return err
	}

	if opts.SaveConnectivity {
		path := filepath.Join(opts.OutputDir, "connectivity.npy")
		logger.Info("Saving connectivity matrix", zap.String("file", path))
		if err := io.SaveConnectivity(out.Connectivity, path); err != nil {
			return err
		}
	}

	return nil
}

// findFiles returns the explicit input files when given, otherwise the
// BIDS files matching the query options
func findFiles(logger *zap.Logger, opts *options) ([]string, error) {
	var files []string
	if opts.explicit() {
		explicit, err := opts.explicitFiles()
		if err != nil {
			return nil, err
		}
		files = explicit
	} else {
		layout, err := bids.NewLayout(opts.BIDSDir)
		if err != nil {
			return nil, err
		}
		files = layout.Get(opts.query())
	}

	logger.Info("Found input files", zap.Int("count", len(files)), zap.Bool("explicit", opts.explicit()))
	logger.Debug("Input files", zap.Strings("files", files))

	return files, nil
}

// checkInputs rejects runs that would overwrite output or cannot produce a
// connectivity matrix
func checkInputs(opts *options, files []string, outputFile string) error {
	if _, err := os.Stat(outputFile); err == nil && !opts.Force {
		return errs.Input("Output file already exists. Use --force to overwrite.")
	}

	if len(files) == 0 {
		return errs.Input("No input files found.")
	}

	var volumes, surfaces int
	for _, f := range files {
		switch image.KindOf(f) {
		case image.NIfTI:
			volumes++
		case image.GIFTI:
			surfaces++
		}
	}

	if volumes > 0 && opts.Parcellation == "" {
		return errs.Input("Must provide a parcellation if input files are volume files.")
	}
	if volumes > 0 && surfaces > 0 {
		return errs.Input("Input files mix volume and surface images.")
	}

	return nil
}
