package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vortexdata/ferry/internal/pipeline"
	"github.com/vortexdata/ferry/pkg/changelog"
	"github.com/vortexdata/ferry/pkg/config"
	"github.com/vortexdata/ferry/pkg/connector/registry"
	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/formats"
	"github.com/vortexdata/ferry/pkg/hooks"
	"github.com/vortexdata/ferry/pkg/logger"

	// Register the built-in connectors
	_ "github.com/vortexdata/ferry/pkg/connector/destinations/file"
	_ "github.com/vortexdata/ferry/pkg/connector/sources/file"
)

var version = "0.1.0"

func main() {
	// Load .env if present
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "ferry",
		Short: "Ferry - file data integration toolkit",
		Long: `Ferry moves records between files in csv, jsonl and avro formats and
validates the repository tooling configuration (hook pipelines, changelog
fragments) that ships alongside data projects.`,
	}

	root.AddCommand(versionCmd())
	root.AddCommand(listCmd())
	root.AddCommand(runCmd())
	root.AddCommand(hooksCmd())
	root.AddCommand(changelogCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Ferry v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available connectors and formats",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Source connectors:")
			for _, name := range registry.ListSources() {
				fmt.Printf("  - %s\n", name)
			}
			fmt.Println("\nDestination connectors:")
			for _, name := range registry.ListDestinations() {
				fmt.Printf("  - %s\n", name)
			}
			fmt.Println("\nFormats:")
			for _, name := range formats.Names() {
				fmt.Printf("  - %s\n", name)
			}
		},
	}
}

func runCmd() *cobra.Command {
	var sourceFile, destFile string
	var batchSize, workers int
	var timeout, flushInterval time.Duration
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a data pipeline",
		Long: `Run a data pipeline with the given source and destination configurations.
Configuration files are YAML with ${ENV} substitution.

Example:
  ferry run --source source.yaml --destination dest.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: logLevel}); err != nil {
				return err
			}
			defer logger.Sync()

			return runPipeline(sourceFile, destFile, &pipeline.Config{
				BatchSize:     batchSize,
				WorkerCount:   workers,
				FlushInterval: flushInterval,
			}, timeout)
		},
	}

	cmd.Flags().StringVarP(&sourceFile, "source", "s", "", "Path to source configuration YAML file (required)")
	cmd.Flags().StringVarP(&destFile, "destination", "d", "", "Path to destination configuration YAML file (required)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("destination")

	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Number of records per batch")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Number of transform workers")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Pipeline timeout")
	cmd.Flags().DurationVar(&flushInterval, "flush-interval", time.Second, "Interval for periodic batch flushing")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func runPipeline(sourceFile, destFile string, pcfg *pipeline.Config, timeout time.Duration) error {
	sourceConfig := config.NewBaseConfig("", "source")
	if err := config.Load(sourceFile, sourceConfig); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "source configuration error")
	}

	destConfig := config.NewBaseConfig("", "destination")
	if err := config.Load(destFile, destConfig); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "destination configuration error")
	}

	sourceConfig.Performance.BatchSize = pcfg.BatchSize
	destConfig.Performance.BatchSize = pcfg.BatchSize

	log := logger.Get().With(
		zap.String("source", sourceConfig.Name),
		zap.String("destination", destConfig.Name),
	)

	source, err := registry.CreateSource(sourceConfig.Name, sourceConfig)
	if err != nil {
		return err
	}
	destination, err := registry.CreateDestination(destConfig.Name, destConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := source.Initialize(ctx, sourceConfig); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize source")
	}
	defer source.Close(ctx)

	if err := destination.Initialize(ctx, destConfig); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize destination")
	}
	defer destination.Close(ctx)

	p := pipeline.New(source, destination, pcfg)
	if err := p.Run(ctx); err != nil {
		return err
	}

	m := p.Metrics()
	log.Info("pipeline finished",
		zap.Any("records_processed", m["records_processed"]),
		zap.Any("records_failed", m["records_failed"]),
		zap.Any("throughput_rps", m["throughput_rps"]))
	return nil
}

func hooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Work with hook-pipeline configurations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a hook-pipeline configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := hooks.Load(args[0])
			if err != nil {
				return err
			}
			issues := cfg.Validate()
			if len(issues) == 0 {
				fmt.Printf("%s: ok (%d hooks declared)\n", args[0], len(cfg.HookIDs()))
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "%s: %s\n", args[0], issue)
			}
			return errors.Newf(errors.ErrorTypeValidation,
				"%d issue(s) in %s", len(issues), args[0])
		},
	})
	return cmd
}

func changelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Work with changelog fragments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <dir>",
		Short: "Lint changelog fragments in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := changelog.Check(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", args[0])
			return nil
		},
	})

	var relVersion, relDate, outFile string
	render := &cobra.Command{
		Use:   "render <dir>",
		Short: "Render changelog fragments into a release section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragments, err := changelog.Collect(args[0])
			if err != nil {
				return err
			}

			date := relDate
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			release := &changelog.Release{
				Version:   relVersion,
				Date:      date,
				Fragments: fragments,
			}

			if outFile == "" {
				fmt.Print(release.Render())
				return nil
			}
			if err := release.RenderTo(outFile); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d entries)\n", outFile, len(fragments))
			return nil
		},
	}
	render.Flags().StringVar(&relVersion, "version", "", "Release version (required)")
	render.Flags().StringVar(&relDate, "date", "", "Release date (YYYY-MM-DD, default today)")
	render.Flags().StringVar(&outFile, "out", "", "Output file; the release is prepended when the file exists")
	_ = render.MarkFlagRequired("version")
	cmd.AddCommand(render)

	return cmd
}
