// Package main provides the Lambda entry point for bulk QR-code generation.
//
// Each SQS record carries one job: a list of {shortUrl, longUrl} mappings and
// the storage prefix to write under. For every job the Lambda uploads a CSV
// manifest, a zip of branded SVG QR codes and a zip of the same codes as PNG,
// then publishes a completion event to EventBridge.
//
// Event format (SQS record body):
//
//	{
//	  "filePath": "uploads/abc",
//	  "mappings": [{"shortUrl": "abc123", "longUrl": "https://example.com"}]
//	}
//
// Container: Light (no native dependencies)
// Memory: 2 GB
// Timeout: 15 minutes
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/qr-bulk-generator/internal/lambdaboot"
	"github.com/fpang/qr-bulk-generator/internal/logging"
	"github.com/fpang/qr-bulk-generator/internal/pipeline"
	"github.com/fpang/qr-bulk-generator/internal/qrimage"
	"github.com/fpang/qr-bulk-generator/internal/scratch"
)

var coldStart = true

var orchestrator *pipeline.Orchestrator

func init() {
	initStart := time.Now()
	logging.Init()

	awsCfg := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(awsCfg)

	brand, err := qrimage.BrandFor(cfg.BrandVariant)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid brand variant")
	}

	orchestrator = pipeline.New(cfg,
		lambdaboot.InitStreamer(awsCfg, cfg),
		qrimage.NewSynthesizer(brand, cfg.ShortDomain, qrimage.WithConcurrency(cfg.RenderConcurrency)),
		lambdaboot.InitNotifier(awsCfg, cfg),
		scratch.NewManager(cfg.ScratchRoot),
	)

	lambdaboot.StartupLog("qrcode-lambda", initStart, cfg).Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "qrcode-lambda").Msg("Cold start — first invocation")
	}
	return pipeline.HandleSQSEvent(ctx, orchestrator, event)
}
