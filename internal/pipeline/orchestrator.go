// Package pipeline runs one bulk QR generation job end to end: CSV manifest,
// SVG set, PNG set, scratch cleanup and the completion event.
//
// Stages run strictly in sequence. The first failure skips every later
// stage; the completion event is published exactly once either way and the
// original error is returned so the hosting runtime's retry policy applies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/qr-bulk-generator/internal/config"
	"github.com/fpang/qr-bulk-generator/internal/manifest"
	"github.com/fpang/qr-bulk-generator/internal/metrics"
	"github.com/fpang/qr-bulk-generator/internal/qrimage"
	"github.com/fpang/qr-bulk-generator/internal/s3util"
)

// Storage uploads job artifacts. Implemented by *s3util.Streamer.
type Storage interface {
	qrimage.ArchiveUploader
	UploadBytes(ctx context.Context, buf []byte, contentType, key string) error
	ZipDirectory(ctx context.Context, dir, key string) (s3util.ArchiveResult, error)
}

// Renderer produces QR image sets. Implemented by *qrimage.Synthesizer.
type Renderer interface {
	UploadSet(ctx context.Context, uploader qrimage.ArchiveUploader, shortURLs []string, format qrimage.ImageFormat, key string) (s3util.ArchiveResult, error)
	RenderToDirectory(ctx context.Context, shortURLs []string, format qrimage.ImageFormat, dir string) error
}

// Notifier publishes the completion event. Implemented by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, success bool, filePath, errorMessage string)
}

// ScratchDirs manages local working directories. Implemented by *scratch.Manager.
type ScratchDirs interface {
	Path(elem ...string) (string, error)
	CreateOrReset(path string, overwrite bool) error
	RemoveRecursive(path string)
}

// ErrInvalidJob is wrapped by errors for jobs rejected before any upload.
var ErrInvalidJob = errors.New("invalid job")

// Orchestrator sequences the stages of a job.
type Orchestrator struct {
	storage  Storage
	renderer Renderer
	notifier Notifier
	scratch  ScratchDirs
	domain   string
	mode     config.GenerationMode

	onStage     func(Stage)
	newRecorder func() *metrics.Recorder
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithStageHook registers fn to observe every state transition.
func WithStageHook(fn func(Stage)) Option {
	return func(o *Orchestrator) { o.onStage = fn }
}

// WithMetrics replaces the EMF recorder factory.
func WithMetrics(fn func() *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.newRecorder = fn }
}

// New returns an Orchestrator for the given collaborators and configuration.
func New(cfg config.Config, storage Storage, renderer Renderer, notifier Notifier, scratch ScratchDirs, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		storage:     storage,
		renderer:    renderer,
		notifier:    notifier,
		scratch:     scratch,
		domain:      cfg.ShortDomain,
		mode:        cfg.Mode,
		onStage:     func(Stage) {},
		newRecorder: metrics.New,
	}
	if o.mode == "" {
		o.mode = config.ModeStream
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes job and returns the artifacts it uploaded.
func (o *Orchestrator) Run(ctx context.Context, job BulkGenerationJob) ([]GeneratedArtifact, error) {
	start := time.Now()
	logger := log.With().
		Str("runId", uuid.NewString()).
		Str("filePath", job.FilePath).
		Int("mappings", len(job.Mappings)).
		Logger()

	o.transition(logger, StageStarted)
	rec := o.newRecorder().
		Property("filePath", job.FilePath).
		Count("Mappings", len(job.Mappings))

	artifacts, archiveBytes, err := o.runStages(ctx, job, logger)

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyBudget*time.Second)
	defer cancel()

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Bulk QR job failed")
		o.notifier.Notify(notifyCtx, false, job.FilePath, err.Error())
		o.transition(logger, StageNotifiedFailure)
		rec.Dimension("Status", "Failed").Duration("JobDuration", time.Since(start)).Flush()
		return artifacts, err
	}

	o.notifier.Notify(notifyCtx, true, job.FilePath, "")
	o.transition(logger, StageNotifiedSuccess)
	rec.Dimension("Status", "Success").
		Duration("JobDuration", time.Since(start)).
		Metric("ArchiveBytes", float64(archiveBytes), metrics.UnitBytes).
		Flush()

	logger.Info().
		Int("artifacts", len(artifacts)).
		Dur("elapsed", time.Since(start)).
		Msg("Bulk QR job complete")
	return artifacts, nil
}

// runStages runs every upload stage and always removes the job's scratch
// directory before returning.
func (o *Orchestrator) runStages(ctx context.Context, job BulkGenerationJob, logger zerolog.Logger) (artifacts []GeneratedArtifact, archiveBytes int64, err error) {
	root, err := o.validate(job)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		o.scratch.RemoveRecursive(root)
		if err == nil {
			o.transition(logger, StageScratchCleaned)
		}
	}()

	csvKey := path.Join(job.FilePath, csvObject)
	csvData, err := manifest.RenderCSV(job.Mappings, o.domain)
	if err != nil {
		return nil, 0, fmt.Errorf("render manifest: %w", err)
	}
	if err := o.storage.UploadBytes(ctx, csvData, s3util.ContentTypeCSV, csvKey); err != nil {
		return nil, 0, err
	}
	artifacts = append(artifacts, GeneratedArtifact{StorageKey: csvKey, ContentType: s3util.ContentTypeCSV})
	o.transition(logger, StageCsvUploaded)

	sets := []struct {
		format  qrimage.ImageFormat
		object  string
		scratch string
		stage   Stage
	}{
		{qrimage.FormatSVG, svgObject, svgScratch, StageSvgSetUploaded},
		{qrimage.FormatPNG, pngObject, pngScratch, StagePngSetUploaded},
	}
	for _, set := range sets {
		key := path.Join(job.FilePath, set.object)
		res, err := o.uploadSet(ctx, job, set.format, key, set.scratch)
		if err != nil {
			return artifacts, archiveBytes, err
		}
		archiveBytes += res.Bytes
		artifacts = append(artifacts, GeneratedArtifact{StorageKey: key, ContentType: s3util.ContentTypeZip})
		o.transition(logger, set.stage)
	}

	return artifacts, archiveBytes, nil
}

func (o *Orchestrator) uploadSet(ctx context.Context, job BulkGenerationJob, format qrimage.ImageFormat, key, sub string) (s3util.ArchiveResult, error) {
	dir, err := o.scratch.Path(job.FilePath, sub)
	if err != nil {
		return s3util.ArchiveResult{Key: key}, err
	}
	if err := o.scratch.CreateOrReset(dir, true); err != nil {
		return s3util.ArchiveResult{Key: key}, err
	}

	if o.mode == config.ModeSpool {
		if err := o.renderer.RenderToDirectory(ctx, job.ShortURLs(), format, dir); err != nil {
			return s3util.ArchiveResult{Key: key}, err
		}
		return o.storage.ZipDirectory(ctx, dir, key)
	}
	return o.renderer.UploadSet(ctx, o.storage, job.ShortURLs(), format, key)
}

func (o *Orchestrator) transition(logger zerolog.Logger, s Stage) {
	logger.Debug().Str("stage", s.String()).Msg("Job stage reached")
	o.onStage(s)
}

// validate rejects jobs that cannot produce a well-formed output set and
// returns the job's scratch root.
func (o *Orchestrator) validate(job BulkGenerationJob) (string, error) {
	if strings.TrimSpace(job.FilePath) == "" {
		return "", fmt.Errorf("%w: filePath is required", ErrInvalidJob)
	}
	if len(job.Mappings) == 0 {
		return "", fmt.Errorf("%w: no mappings", ErrInvalidJob)
	}
	if path.IsAbs(job.FilePath) || strings.HasPrefix(job.FilePath, `\`) {
		return "", fmt.Errorf("%w: filePath %q must be relative", ErrInvalidJob, job.FilePath)
	}
	root, err := o.scratch.Path(job.FilePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return root, nil
}
