package s3util

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/qr-bulk-generator/internal/ziputil"
)

// ArchiveResult describes a zip archive that was streamed to S3.
type ArchiveResult struct {
	Key     string
	Entries int
	Bytes   int64
}

// StreamArchive opens a streaming upload to key, hands fill a zip archive
// writing into it and finalizes the archive once fill returns successfully.
// If fill fails, the archive is not finalized and the upload is aborted so
// no partial object is committed. The call returns only after the upload
// has settled, with the first error recorded by either side.
func (s *Streamer) StreamArchive(ctx context.Context, key string, fill func(*ziputil.Archive) error) (ArchiveResult, error) {
	up := s.OpenStreamingUpload(ctx, key, ContentTypeZip)
	archive := ziputil.NewArchive(up, s.opts.Compression)

	err := fill(archive)
	if err == nil {
		if cerr := archive.Close(); cerr != nil {
			err = &ArchiveStreamError{Err: cerr}
		}
	}
	if err != nil {
		archive.Abort()
		up.CloseWithError(err)
		werr := up.Wait()
		log.Warn().Err(werr).Str("key", key).Msg("Archive upload aborted")
		return ArchiveResult{Key: key}, werr
	}

	if err := up.Close(); err != nil {
		up.CloseWithError(err)
	}
	if err := up.Wait(); err != nil {
		return ArchiveResult{Key: key}, err
	}
	return ArchiveResult{Key: key, Entries: archive.Entries(), Bytes: up.Written()}, nil
}

// ZipDirectory streams a zip of every regular file below dir to key.
// Entry names are the slash-separated paths relative to dir.
func (s *Streamer) ZipDirectory(ctx context.Context, dir, key string) (ArchiveResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return ArchiveResult{Key: key}, &ArchiveStreamError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return ArchiveResult{Key: key}, &ArchiveStreamError{Path: dir, Err: fmt.Errorf("not a directory")}
	}

	return s.StreamArchive(ctx, key, func(archive *ziputil.Archive) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return &ArchiveStreamError{Path: path, Err: walkErr}
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				return nil
			}
			if !d.Type().IsRegular() {
				log.Debug().Str("path", path).Msg("Skipping non-regular file")
				return nil
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return &ArchiveStreamError{Path: path, Err: err}
			}
			return addFile(archive, path, filepath.ToSlash(rel))
		})
	})
}

func addFile(archive *ziputil.Archive, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ArchiveStreamError{Path: path, Err: err}
	}
	defer f.Close()

	if err := archive.AddReader(name, f); err != nil {
		return &ArchiveStreamError{Path: path, Err: err}
	}
	return nil
}
