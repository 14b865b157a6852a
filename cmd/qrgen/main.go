// Package main provides qrgen, a local companion to the generator Lambda.
//
// Subcommands:
//
//	qrgen render     --job job.json --out ./out   render a job's images and CSV to disk
//	qrgen run        --job job.json               run the full job against AWS using the Lambda's env config
//	qrgen upload-dir --dir ./out/svg --key k.zip   zip a local directory straight to S3
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/qr-bulk-generator/internal/cli"
	"github.com/fpang/qr-bulk-generator/internal/config"
	"github.com/fpang/qr-bulk-generator/internal/lambdaboot"
	"github.com/fpang/qr-bulk-generator/internal/logging"
	"github.com/fpang/qr-bulk-generator/internal/manifest"
	"github.com/fpang/qr-bulk-generator/internal/pipeline"
	"github.com/fpang/qr-bulk-generator/internal/qrimage"
	"github.com/fpang/qr-bulk-generator/internal/scratch"
)

// CLI flags
var (
	jobFlag         string
	outFlag         string
	formatsFlag     []string
	brandFlag       string
	domainFlag      string
	concurrencyFlag int
	dirFlag         string
	keyFlag         string
)

var rootCmd = &cobra.Command{
	Use:   "qrgen",
	Short: "Branded bulk QR-code generator",
	Long: `qrgen renders branded QR codes for short-link mappings.

A job file has the same shape as the Lambda's queue message:

  {"filePath": "batch-7", "mappings": [{"shortUrl": "abc123", "longUrl": "https://example.com"}]}

Examples:
  qrgen render --job job.json --out ./out --brand gov --domain go.example.sg
  qrgen render --job - --format png < job.json
  qrgen run --job job.json
  qrgen upload-dir --dir ./out/svg --key batch-7/svg.zip`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a job's QR images and CSV manifest to a local directory",
	Run:   runRender,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a job end to end against S3 and EventBridge",
	Run:   runJob,
}

var uploadDirCmd = &cobra.Command{
	Use:   "upload-dir",
	Short: "Zip a local directory and stream it to S3",
	Run:   runUploadDir,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&jobFlag, "job", "j", "", "Job JSON file (- for stdin)")

	renderCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Output directory (prompted when omitted)")
	renderCmd.Flags().StringSliceVarP(&formatsFlag, "format", "f", []string{"svg", "png"}, "Image formats to render (svg, png)")
	renderCmd.Flags().StringVarP(&brandFlag, "brand", "b", os.Getenv(config.EnvBrandVariant), "Brand variant (gov, edu, health)")
	renderCmd.Flags().StringVarP(&domainFlag, "domain", "d", os.Getenv(config.EnvShortDomain), "Short-link domain, e.g. go.example.sg")
	renderCmd.Flags().IntVar(&concurrencyFlag, "concurrency", runtime.NumCPU(), "Images rendered in parallel")

	uploadDirCmd.Flags().StringVar(&dirFlag, "dir", "", "Directory to archive")
	uploadDirCmd.Flags().StringVar(&keyFlag, "key", "", "Destination object key")
	_ = uploadDirCmd.MarkFlagRequired("dir")
	_ = uploadDirCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(renderCmd, runCmd, uploadDirCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadJob() pipeline.BulkGenerationJob {
	path := jobFlag
	if path == "" {
		path = cli.PromptForValue(os.Stdin, os.Stderr, "Job file", "job.json")
	}
	job, err := cli.ReadJob(path, os.Stdin)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load job")
	}
	return job
}

func runRender(cmd *cobra.Command, args []string) {
	start := time.Now()
	job := loadJob()

	cfg := config.Config{
		BrandVariant:      brandFlag,
		ShortDomain:       domainFlag,
		RenderConcurrency: concurrencyFlag,
	}
	brand, err := qrimage.BrandFor(cfg.BrandVariant)
	if err != nil {
		cli.HandleConfigError(err)
	}
	if cfg.ShortDomain == "" {
		cli.HandleConfigError(&config.ConfigurationError{Key: config.EnvShortDomain, Err: config.ErrMissing})
	}

	out := outFlag
	if out == "" {
		out = cli.PromptForValue(os.Stdin, os.Stderr, "Output directory", filepath.Join(".", job.FilePath))
	}
	if err := os.MkdirAll(out, 0o750); err != nil {
		log.Fatal().Err(err).Str("path", out).Msg("Failed to create output directory")
	}
	out = cli.ValidateAndResolveDirectory(out)

	ctx, stop := signalContext()
	defer stop()

	synth := qrimage.NewSynthesizer(brand, cfg.ShortDomain, qrimage.WithConcurrency(cfg.RenderConcurrency))

	csvBody, err := manifest.RenderCSV(job.Mappings, cfg.ShortDomain)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to render CSV manifest")
	}
	csvPath := filepath.Join(out, "manifest.csv")
	if err := os.WriteFile(csvPath, csvBody, 0o640); err != nil {
		log.Fatal().Err(err).Str("path", csvPath).Msg("Failed to write CSV manifest")
	}

	for _, f := range formatsFlag {
		format, err := qrimage.ParseFormat(f)
		if err != nil {
			log.Fatal().Err(err).Str("format", f).Msg("Unsupported image format")
		}
		dir := filepath.Join(out, string(format))
		formatStart := time.Now()
		if err := synth.RenderToDirectory(ctx, job.ShortURLs(), format, dir); err != nil {
			log.Fatal().Err(err).Str("format", string(format)).Msg("Render failed")
		}
		log.Info().
			Str("format", string(format)).
			Str("dir", dir).
			Int("images", len(job.Mappings)).
			Dur("elapsed", time.Since(formatStart)).
			Msg("QR image set rendered")
	}

	fmt.Printf("Rendered %d QR codes to %s in %s\n", len(job.Mappings), out, cli.FormatDurationShort(time.Since(start)))
}

func runJob(cmd *cobra.Command, args []string) {
	start := time.Now()
	job := loadJob()

	awsCfg := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(awsCfg)
	brand, err := qrimage.BrandFor(cfg.BrandVariant)
	if err != nil {
		cli.HandleConfigError(err)
	}

	orch := pipeline.New(cfg,
		lambdaboot.InitStreamer(awsCfg, cfg),
		qrimage.NewSynthesizer(brand, cfg.ShortDomain, qrimage.WithConcurrency(cfg.RenderConcurrency)),
		lambdaboot.InitNotifier(awsCfg, cfg),
		scratch.NewManager(cfg.ScratchRoot),
		pipeline.WithStageHook(func(s pipeline.Stage) {
			fmt.Fprintf(os.Stderr, "  %s\n", s)
		}),
	)

	ctx, stop := signalContext()
	defer stop()

	artifacts, err := orch.Run(ctx, job)
	if err != nil {
		log.Fatal().Err(err).Str("filePath", job.FilePath).Msg("Job failed")
	}

	fmt.Printf("Job %s finished in %s\n", job.FilePath, cli.FormatDurationShort(time.Since(start)))
	for _, a := range artifacts {
		fmt.Printf("  s3://%s/%s (%s)\n", cfg.Bucket, a.StorageKey, a.ContentType)
	}
}

func runUploadDir(cmd *cobra.Command, args []string) {
	dir := cli.ValidateAndResolveDirectory(dirFlag)

	awsCfg := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(awsCfg)
	streamer := lambdaboot.InitStreamer(awsCfg, cfg)

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	res, err := streamer.ZipDirectory(ctx, dir, keyFlag)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Str("key", keyFlag).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %d files (%s) to s3://%s/%s in %s\n",
		res.Entries, cli.FormatBytes(res.Bytes), streamer.Bucket(), res.Key, cli.FormatDurationShort(time.Since(start)))
}
