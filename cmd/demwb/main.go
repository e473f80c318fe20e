package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/demwb"
	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.airbusds-geo.com/log"
	"go.uber.org/zap"
)

// exitNoContext is the exit code used when no tile could be set up.
const exitNoContext = -1

var errNoContext = errors.New("no context could be created")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd := newDEMWBCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errNoContext) {
			os.Exit(exitNoContext)
		}
		os.Exit(1)
	}
}

func newDEMWBCommand() *cobra.Command {
	var srtm, swbd, workingDir string
	var tiles []string
	var workers int
	var verbose, dryRun bool
	var configFile, metricsFile string
	var copts, configOpts []string
	var otbLauncher, gdaldem string
	var cfg demwb.Config
	var logger *zap.Logger
	var startTime time.Time

	cmd := &cobra.Command{
		Use:   "demwb [flags] input output [tile...]",
		Short: "Creates DEM and water-body auxiliary data for a Landsat-8 or Sentinel-2 product",
		Args:  cobra.MinimumNArgs(2),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			startTime = time.Now()
			if !verbose {
				os.Setenv("LOGLEVEL", "info")
				log.Structured()
			}
			logger = log.Logger(cmd.Context()).With(zap.String("run", uuid.New().String()))

			cfg = demwb.DefaultConfig()
			if configFile != "" {
				var err error
				if cfg, err = demwb.LoadConfig(configFile); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("processes-number") {
				cfg.Workers = workers
			}
			if flags.Changed("otb-launcher") {
				cfg.OTBLauncher = otbLauncher
			}
			if flags.Changed("gdaldem") {
				cfg.GDALDEM = gdaldem
			}
			cfg.CreationOptions = append(cfg.CreationOptions, copts...)
			cfg.GDALConfig = append(cfg.GDALConfig, configOpts...)
			if demwb.IsGCS(swbd) {
				return fmt.Errorf("water-body archive %s must be a local directory", swbd)
			}
			godal.RegisterAll()
			return cfg.Validate()
		},
		PostRun: func(cmd *cobra.Command, _ []string) {
			logger.Sugar().Debugf("command %s took %.1fs",
				cmd.Name(), time.Since(startTime).Seconds())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&srtm, "srtm", "", "SRTM dataset path (local directory or gs://bucket/prefix)")
	flags.StringVar(&swbd, "swbd", "", "SWBD dataset path")
	flags.StringVarP(&workingDir, "working-dir", "w", "", "working directory")
	flags.StringSliceVarP(&tiles, "tiles-list", "l", nil, "if set, only these tiles will be processed (comma separated or repeated; tiles given after output are added)")
	flags.IntVarP(&workers, "processes-number", "p", demwb.DefaultWorkers, "number of tiles processed concurrently")
	flags.BoolVar(&verbose, "verbose", false, "verbose output")
	flags.StringVar(&configFile, "config", "", "yaml configuration file")
	flags.StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file when done")
	flags.StringArrayVar(&copts, "co", nil, "tif creation options")
	flags.StringArrayVar(&configOpts, "gdal-config", nil, "gdal configuration options")
	flags.StringVar(&otbLauncher, "otb-launcher", "otbcli", "command used to start OTB applications")
	flags.StringVar(&gdaldem, "gdaldem", "gdaldem", "gdaldem executable")
	flags.BoolVar(&dryRun, "dry-run", false, "list the products that would be created and exit")

	cmd.MarkFlagRequired("srtm")
	cmd.MarkFlagRequired("swbd")
	cmd.MarkFlagRequired("working-dir")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		input, output := args[0], args[1]
		tiles = append(tiles, args[2:]...)

		var archive demwb.TileArchive
		if demwb.IsGCS(srtm) {
			stcl, err := storage.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("storage.newclient: %w", err)
			}
			defer stcl.Close()
			if err := demwb.RegisterGCSHandler(ctx, stcl, cfg.GCSBlockSize, cfg.GCSNumBlocks); err != nil {
				return err
			}
			if archive, err = demwb.NewGCSArchive(stcl, srtm, cfg.TileCacheSize); err != nil {
				return err
			}
		}

		contexts, err := demwb.BuildContexts(demwb.BuildOptions{
			Input:      input,
			Output:     output,
			WorkingDir: workingDir,
			SRTM:       srtm,
			SWBD:       swbd,
			Tiles:      tiles,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("setup failed", zap.Error(err))
			return err
		}
		if len(contexts) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), errNoContext.Error())
			return errNoContext
		}

		if dryRun {
			out := cmd.OutOrStdout()
			for _, tc := range contexts {
				fmt.Fprintln(out, tc.MetadataFile)
				for _, p := range tc.Products() {
					if p != "" {
						fmt.Fprintln(out, " ", p)
					}
				}
			}
			return nil
		}

		tools, err := cfg.Tools(demwb.ExecRunner{Logger: logger})
		if err != nil {
			return err
		}
		progress, _ := cfg.ProgressInterval()
		processor := demwb.NewProcessor(tools, archive, logger)
		executor := &demwb.Executor{
			Workers:          cfg.Workers,
			ProgressInterval: progress,
			Logger:           logger,
		}
		report, runErr := executor.Run(ctx, contexts, processor.Process)

		failed := report.Failed()
		logger.Info("run finished",
			zap.Int("tiles", len(report)),
			zap.Int("failed", len(failed)))
		if metricsFile != "" {
			if err := demwb.WriteMetrics(metricsFile); err != nil {
				logger.Warn("cannot write metrics", zap.Error(err))
			}
		}
		return runErr
	}

	return cmd
}
