// Package main selects the keyframes of an RGB-D capture and prunes the other frames.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"
	"gopkg.in/src-d/go-billy.v4/util"

	"go.viam.com/keyframes/framestore"
	"go.viam.com/keyframes/logging"
	"go.viam.com/keyframes/vision/keyframes"
)

var (
	logger = logging.NewLogger("keyframes")
	// output receives the report and the schema.
	output io.Writer = os.Stdout
)

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Dataset         string `flag:"0,usage=capture directory holding color/ and depth/"`
	Config          string `flag:"config,usage=JSON configuration file"`
	Mode            string `flag:"mode,usage=scoring mode: whole or quadrant"`
	Level           int    `flag:"level,usage=scoring level: 1 (whole) or 2 (quadrant)"`
	Threshold       string `flag:"threshold,usage=overlap score above which a frame is redundant (default 0.75)"`
	Correspondences bool   `flag:"correspondences,usage=draw the matches of consecutive keyframes"`
	VisualizeDir    string `flag:"visualize-dir,usage=directory of the correspondence images"`
	DryRun          bool   `flag:"dry-run,usage=write the prune plan without deleting frames"`
	Plan            string `flag:"plan,usage=prune plan output file"`
	Checkpoint      string `flag:"checkpoint,usage=selection checkpoint file to resume from and update"`
	Report          string `flag:"report,usage=also write the report to this file"`
	ScorePlot       string `flag:"score-plot,usage=write a png plot of the comparison scores"`
	Parallel        bool   `flag:"parallel,usage=score quadrants concurrently"`
	Ext             string `flag:"ext,usage=frame file extension (default png)"`
	PrintSchema     bool   `flag:"print-schema,usage=print the JSON schema of the configuration and exit"`
	Debug           bool   `flag:"debug,usage=debug logging"`
	LogFile         string `flag:"log-file,usage=also log to this rotated file"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	if argsParsed.PrintSchema {
		schema, err := keyframes.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(output, string(schema))
		return err
	}
	if argsParsed.Dataset == "" {
		return errors.New("a capture directory is required")
	}

	cfg, err := buildConfig(argsParsed, logger)
	if err != nil {
		return err
	}

	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
		ctx = logging.EnableDebugMode(ctx, "")
	}
	if argsParsed.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   argsParsed.LogFile,
			MaxSize:    64,
			MaxBackups: 3,
		}
		logger.AddAppender(logging.NewWriterAppender(rotated))
		defer func() {
			err = multierr.Combine(err, rotated.Close())
		}()
	}

	return run(ctx, argsParsed.Dataset, cfg, logger)
}

// buildConfig starts from the config file, or the defaults, and applies the flags over it.
func buildConfig(args Arguments, logger logging.Logger) (*keyframes.Config, error) {
	cfg := keyframes.DefaultConfig()
	if args.Config != "" {
		var err error
		if cfg, err = keyframes.LoadConfig(args.Config, logger); err != nil {
			return nil, err
		}
	}

	if args.Level != 0 {
		mode, err := keyframes.ModeFromLevel(args.Level)
		if err != nil {
			return nil, err
		}
		if args.Mode != "" && keyframes.Mode(args.Mode) != mode {
			return nil, errors.Errorf("-mode %s contradicts -level %d", args.Mode, args.Level)
		}
		cfg.Mode = mode
	}
	if args.Mode != "" {
		cfg.Mode = keyframes.Mode(args.Mode)
	}
	if args.Threshold != "" {
		threshold, err := cast.ToFloat64E(args.Threshold)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid -threshold %q", args.Threshold)
		}
		cfg.Threshold = threshold
	}
	if args.Correspondences {
		cfg.VisualizeCorrespondences = true
	}
	if args.VisualizeDir != "" {
		cfg.VisualizeDir = args.VisualizeDir
	}
	if args.DryRun {
		cfg.DryRun = true
	}
	if args.Plan != "" {
		cfg.PlanPath = args.Plan
	}
	if args.Checkpoint != "" {
		cfg.CheckpointPath = args.Checkpoint
	}
	if args.Report != "" {
		cfg.ReportPath = args.Report
	}
	if args.ScorePlot != "" {
		cfg.ScorePlotPath = args.ScorePlot
	}
	if args.Parallel {
		cfg.ParallelQuadrants = true
	}
	if args.Ext != "" {
		cfg.FrameExt = args.Ext
	}
	if err := cfg.Validate("flags", logger); err != nil {
		return nil, err
	}
	return cfg, nil
}

// outputFS resolves an output path: relative paths live under the capture root.
func outputFS(root billy.Filesystem, p string) (billy.Filesystem, string) {
	if filepath.IsAbs(p) {
		return osfs.New(filepath.Dir(p)), filepath.Base(p)
	}
	return root, filepath.ToSlash(p)
}

func run(ctx context.Context, dataset string, cfg *keyframes.Config, logger logging.Logger) error {
	registry := logging.NewRegistry(logger.GetLevel())
	storeLogger := registry.Sublogger(logger, "keyframes", "framestore")
	scorerLogger := registry.Sublogger(logger, "keyframes", "scorer")
	selectorLogger := registry.Sublogger(logger, "keyframes", "selector")
	prunerLogger := registry.Sublogger(logger, "keyframes", "pruner")
	if err := registry.UpdateConfig(cfg.LogLevels, logger); err != nil {
		return err
	}

	runID := uuid.NewString()
	store, err := framestore.OpenDir(dataset, cfg.FrameExt, storeLogger)
	if err != nil {
		return err
	}
	root := store.Filesystem()
	logger.Infow("selecting keyframes",
		"run", runID, "dataset", dataset, "frames", store.Len(), "mode", cfg.Mode, "threshold", cfg.Threshold)

	extractor, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	scorer, err := keyframes.NewOverlapScorer(cfg.Mode, extractor, newMatcher(cfg), cfg.ParallelQuadrants, scorerLogger)
	if err != nil {
		return err
	}

	var opts []keyframes.SelectorOption
	var checkpoint *keyframes.Checkpointer
	if cfg.CheckpointPath != "" {
		cpFS, cpName := outputFS(root, cfg.CheckpointPath)
		if checkpoint, err = keyframes.NewCheckpointer(cpFS, cpName, runID, store.Len(), cfg, selectorLogger); err != nil {
			return err
		}
		opts = append(opts, keyframes.WithCheckpoint(checkpoint))
	}
	selector, err := keyframes.NewSelector(store.Len(), cfg.Threshold, keyframes.NewFrameScorer(store, scorer), selectorLogger, opts...)
	if err != nil {
		return err
	}
	selection, err := selector.Run(ctx)
	if err != nil {
		return err
	}
	logger.Infow("selected keyframes", "count", len(selection.Keyframes), "comparisons", len(selection.Comparisons))

	plan, err := keyframes.PlanPrune(selection.Keyframes, store.Len())
	if err != nil {
		return err
	}
	plan.RunID = runID
	planFS, planName := outputFS(root, cfg.PlanPath)
	if err := keyframes.WritePlan(planFS, planName, plan); err != nil {
		return err
	}

	if cfg.VisualizeCorrespondences {
		vizFS, vizDir := outputFS(root, cfg.VisualizeDir)
		written, err := keyframes.NewVisualizer(store, scorer, vizFS, vizDir, logger).WriteAll(ctx, selection.Keyframes)
		if err != nil {
			return err
		}
		logger.Infow("wrote correspondence images", "count", len(written), "dir", cfg.VisualizeDir)
	}

	var pruned *keyframes.PruneResult
	if cfg.DryRun {
		logger.Infow("dry run, no frame removed", "plan", cfg.PlanPath)
	} else {
		if pruned, err = keyframes.ApplyPrune(ctx, store, plan, prunerLogger); err != nil {
			return err
		}
		if checkpoint != nil {
			if err := checkpoint.Remove(); err != nil {
				return err
			}
		}
	}

	report, err := keyframes.NewReport(runID, cfg.Mode, selection, pruned)
	if err != nil {
		return err
	}
	text := report.String()
	if _, err := fmt.Fprint(output, text); err != nil {
		return err
	}
	if cfg.ReportPath != "" {
		reportFS, reportName := outputFS(root, cfg.ReportPath)
		if err := util.WriteFile(reportFS, reportName, []byte(text), 0o644); err != nil {
			return errors.Wrapf(err, "cannot write report %q", cfg.ReportPath)
		}
	}
	if cfg.ScorePlotPath != "" {
		plotFS, plotName := outputFS(root, cfg.ScorePlotPath)
		if err := keyframes.WriteScorePlot(plotFS, plotName, selection); err != nil {
			return err
		}
	}
	return nil
}
