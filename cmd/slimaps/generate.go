package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"slimaps/internal/logging"
	"slimaps/pkg/assembly"
	"slimaps/pkg/config"
	"slimaps/pkg/generation"
	"slimaps/pkg/imageio"
	"slimaps/pkg/preparation"
	"slimaps/pkg/progress"
)

// generateOptions holds the flags of the generate command
type generateOptions struct {
	input      string
	configPath string

	output     string
	workers    int
	roiSize    int
	smoothing  string
	mask       bool
	prominence float64
	features   []string
	format     string
	noUpsample bool
	verbose    bool
	progress   string
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate parameter maps from a measurement stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.New(cmd.ErrOrStderr(), cfg.Output.LogLevel, cfg.Output.Verbose)
			return run(opts.input, cfg, logger, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "Directory of per-angle images or a .npy stack")
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Configuration file path")
	flags.StringVarP(&opts.output, "output", "o", "", "Output directory (overrides config)")
	flags.IntVar(&opts.workers, "workers", 0, "Number of parallel workers (overrides config)")
	flags.IntVar(&opts.roiSize, "roisize", 1, "Edge length of averaged pixel blocks (overrides config)")
	flags.StringVar(&opts.smoothing, "smoothing", "", "Line profile filter: none, savgol or fourier (overrides config)")
	flags.BoolVar(&opts.mask, "mask", false, "Zero background profiles (overrides config)")
	flags.Float64Var(&opts.prominence, "prominence", 0, "Prominence threshold of high prominence peaks (overrides config)")
	flags.StringSliceVar(&opts.features, "features", nil, "Comma separated features or \"all\" (overrides config)")
	flags.StringVar(&opts.format, "format", "", "Output format: npy, tiff or both (overrides config)")
	flags.BoolVar(&opts.noUpsample, "no-upsample", false, "Write maps at ROI resolution")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	flags.StringVar(&opts.progress, "progress", "", "Progress display: terminal, log or none (overrides config)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// apply copies every flag set on the command line into cfg
func (o *generateOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Dir = o.output
	}
	if flags.Changed("workers") {
		cfg.Processing.NumWorkers = o.workers
	}
	if flags.Changed("roisize") {
		cfg.Processing.ROISize = o.roiSize
	}
	if flags.Changed("smoothing") {
		cfg.Processing.Smoothing = o.smoothing
	}
	if flags.Changed("mask") {
		cfg.Processing.MaskBackground = o.mask
	}
	if flags.Changed("prominence") {
		cfg.Peaks.Prominence = o.prominence
	}
	if flags.Changed("features") {
		cfg.Features = o.features
	}
	if flags.Changed("format") {
		cfg.Output.Format = o.format
	}
	if flags.Changed("no-upsample") {
		cfg.Output.Upsample = !o.noUpsample
	}
	if flags.Changed("verbose") {
		cfg.Output.Verbose = o.verbose
	}
	if flags.Changed("progress") {
		cfg.Output.Progress = o.progress
	}
}

// run executes the whole pipeline: load, prepare, generate, assemble, write.
// Nothing is written when any step before writing fails.
func run(input string, cfg *config.Config, logger *logrus.Logger, term io.Writer) error {
	startTime := time.Now()

	sel, err := cfg.Selection()
	if err != nil {
		return err
	}

	// Step 1: load the measurement stack
	stack, err := imageio.LoadStack(input)
	if err != nil {
		return fmt.Errorf("failed to load stack: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"input":        input,
		"width":        stack.Shape.Width,
		"height":       stack.Shape.Height,
		"measurements": stack.Measurements,
	}).Info("loaded measurement stack")

	// Step 2: build the ROI set
	prepOpts := cfg.PreparationOptions()
	prepOpts.Logger = logger
	roi, err := preparation.Prepare(stack, prepOpts)
	if err != nil {
		return fmt.Errorf("failed to prepare line profiles: %w", err)
	}

	// Step 3: generate the feature matrix
	params := cfg.GenerationParams()
	params.Logger = logger
	params.Display = newDisplay(cfg.Output.Progress, term, logger, roi.Len())
	result, err := generation.Generate(roi, sel, params)
	if err != nil {
		return err
	}

	// Step 4: rebuild the 2-D maps
	maps, err := assembly.Assemble(result.Matrix, result.Layout, roi.Shape, roi.ROISize, cfg.Output.Upsample)
	if err != nil {
		return fmt.Errorf("failed to assemble maps: %w", err)
	}

	// Step 5: write the maps
	written, err := imageio.WriteMaps(cfg.Output.Dir, outputPrefix(input), cfg.Output.Format, maps)
	if err != nil {
		return fmt.Errorf("failed to write maps: %w", err)
	}
	for _, path := range written {
		logger.WithField("file", path).Debug("wrote map")
	}

	logger.WithFields(logrus.Fields{
		"maps":    len(maps),
		"files":   len(written),
		"dir":     cfg.Output.Dir,
		"elapsed": time.Since(startTime).Round(time.Millisecond),
	}).Info("done")
	return nil
}

// newDisplay creates the progress display selected in the configuration
func newDisplay(mode string, term io.Writer, logger logrus.FieldLogger, total int) progress.Display {
	switch mode {
	case config.ProgressTerminal:
		if term == nil {
			term = os.Stderr
		}
		return progress.NewTerminal(term, "Generating feature maps", total)
	case config.ProgressLog:
		return progress.NewLog(logger, total)
	default:
		return progress.Discard{}
	}
}

// outputPrefix derives the map file prefix from the input name
func outputPrefix(input string) string {
	base := filepath.Base(filepath.Clean(input))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base + "_"
}
