package qrimage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/qr-bulk-generator/internal/s3util"
	"github.com/fpang/qr-bulk-generator/internal/ziputil"
)

// EntryDir is the directory every image lives under inside an archive.
const EntryDir = "qrcodes"

// ArchiveUploader streams a zip archive to object storage. Implemented by
// *s3util.Streamer.
type ArchiveUploader interface {
	StreamArchive(ctx context.Context, key string, fill func(*ziputil.Archive) error) (s3util.ArchiveResult, error)
}

// EntryName returns the archive path of shortURL's image.
func EntryName(shortURL, ext string) string {
	return path.Join(EntryDir, shortURL+"."+ext)
}

// Render composes the image for shortURL and encodes it in format.
func (s *Synthesizer) Render(shortURL string, format ImageFormat) ([]byte, error) {
	img, err := s.ComposeBrandedImage(s.DestinationURL(shortURL))
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatSVG:
		return img.SVG, nil
	case FormatPNG:
		return s.Rasterize(img)
	}
	return nil, &GenerationError{URL: shortURL, Op: "render", Err: fmt.Errorf("unsupported set format %q", string(format))}
}

// RenderSet renders every short URL in format and appends the results to
// archive as qrcodes/{shortUrl}.{ext}. Work runs on a bounded pool; the
// first failure cancels the rest. RenderSet returns only after every worker
// has stopped, so the caller may finalize the archive once it returns nil.
func (s *Synthesizer) RenderSet(ctx context.Context, shortURLs []string, format ImageFormat, archive *ziputil.Archive) error {
	ext, err := format.Extension()
	if err != nil {
		return err
	}
	if err := validateShortURLs(shortURLs); err != nil {
		return err
	}

	return s.fanOut(ctx, shortURLs, format, func(shortURL string, data []byte) error {
		if err := archive.Add(EntryName(shortURL, ext), data); err != nil {
			return fmt.Errorf("append %s: %w", shortURL, err)
		}
		return nil
	})
}

// UploadSet renders the set and streams it as a zip to key. The format is
// checked before any upload is opened.
func (s *Synthesizer) UploadSet(ctx context.Context, uploader ArchiveUploader, shortURLs []string, format ImageFormat, key string) (s3util.ArchiveResult, error) {
	if _, err := format.Extension(); err != nil {
		return s3util.ArchiveResult{Key: key}, err
	}

	start := time.Now()
	res, err := uploader.StreamArchive(ctx, key, func(archive *ziputil.Archive) error {
		return s.RenderSet(ctx, shortURLs, format, archive)
	})
	if err != nil {
		return res, err
	}
	if res.Entries != len(shortURLs) {
		return res, &GenerationError{Op: "upload set", Err: fmt.Errorf("archive %s has %d entries, want %d", key, res.Entries, len(shortURLs))}
	}

	log.Info().
		Str("key", key).
		Str("format", string(format)).
		Int("images", res.Entries).
		Int64("bytes", res.Bytes).
		Dur("elapsed", time.Since(start)).
		Msg("QR image set uploaded")
	return res, nil
}

// RenderToDirectory writes the set to dir/qrcodes/{shortUrl}.{ext}.
func (s *Synthesizer) RenderToDirectory(ctx context.Context, shortURLs []string, format ImageFormat, dir string) error {
	ext, err := format.Extension()
	if err != nil {
		return err
	}
	if err := validateShortURLs(shortURLs); err != nil {
		return err
	}
	out := filepath.Join(dir, EntryDir)
	if err := os.MkdirAll(out, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}

	return s.fanOut(ctx, shortURLs, format, func(shortURL string, data []byte) error {
		p := filepath.Join(out, shortURL+"."+ext)
		if err := os.WriteFile(p, data, 0o640); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		return nil
	})
}

func (s *Synthesizer) fanOut(ctx context.Context, shortURLs []string, format ImageFormat, sink func(shortURL string, data []byte) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, shortURL := range shortURLs {
		shortURL := shortURL
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.Render(shortURL, format)
			if err != nil {
				return err
			}
			return sink(shortURL, data)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// A cancelled parent with no worker error still must not yield a
	// finalized, partial set.
	return ctx.Err()
}

// validateShortURLs rejects values that would not map to a single archive
// entry or file.
func validateShortURLs(shortURLs []string) error {
	for _, u := range shortURLs {
		if u == "" || u == "." || u == ".." || strings.ContainsAny(u, `/\`) {
			return &GenerationError{URL: u, Op: "validate", Err: fmt.Errorf("short URL is not a valid entry name")}
		}
	}
	return nil
}
