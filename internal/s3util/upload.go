// Package s3util uploads generated artifacts to S3: single buffers with one
// PutObject, and archives of unknown length through a streaming multipart
// upload so a job never holds a whole zip in memory.
package s3util

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/qr-bulk-generator/internal/config"
)

// Content types of the generated artifacts.
const (
	ContentTypeCSV = "text/csv"
	ContentTypeZip = "application/zip"
)

// ObjectPutter is the subset of *s3.Client used for single-shot uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// StreamUploader is satisfied by *manager.Uploader. It must read Body until
// EOF or failure and must not require a content length.
type StreamUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Options configures a Streamer.
type Options struct {
	Bucket string
	// KMSKeyID selects SSE-KMS with that key; empty means SSE-S3 (AES256).
	KMSKeyID    string
	Compression config.Compression
}

// Streamer writes objects into a single bucket with server-side encryption.
type Streamer struct {
	putter   ObjectPutter
	uploader StreamUploader
	opts     Options
}

// NewStreamer wires a Streamer to a real S3 client. Multipart parts are
// uploaded with a small concurrency so memory stays bounded at
// PartSize*Concurrency regardless of archive size.
func NewStreamer(client *s3.Client, opts Options) *Streamer {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = manager.DefaultUploadPartSize
		u.Concurrency = 3
	})
	return New(client, uploader, opts)
}

// New builds a Streamer from explicit collaborators.
func New(putter ObjectPutter, uploader StreamUploader, opts Options) *Streamer {
	if opts.Compression == "" {
		opts.Compression = config.CompressionDeflate
	}
	return &Streamer{putter: putter, uploader: uploader, opts: opts}
}

// Bucket returns the destination bucket name.
func (s *Streamer) Bucket() string {
	return s.opts.Bucket
}

// UploadBytes stores buf under key with one PutObject call.
func (s *Streamer) UploadBytes(ctx context.Context, buf []byte, contentType, key string) error {
	start := time.Now()
	input := s.putInput(key, contentType)
	input.Body = bytes.NewReader(buf)
	input.ContentLength = aws.Int64(int64(len(buf)))

	if _, err := s.putter.PutObject(ctx, input); err != nil {
		return &UploadError{Key: key, Err: err}
	}

	log.Info().
		Str("key", key).
		Str("contentType", contentType).
		Int("bytes", len(buf)).
		Dur("elapsed", time.Since(start)).
		Msg("Object uploaded to S3")
	return nil
}

func (s *Streamer) putInput(key, contentType string) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if s.opts.KMSKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.opts.KMSKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}
	return input
}
