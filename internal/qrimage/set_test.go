package qrimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/fpang/qr-bulk-generator/internal/config"
	"github.com/fpang/qr-bulk-generator/internal/s3util"
	"github.com/fpang/qr-bulk-generator/internal/ziputil"
)

// memUploader builds the archive in memory, finalizing it only when fill
// succeeds, like the S3 streamer.
type memUploader struct {
	calls   int
	objects map[string][]byte
	err     error
}

func (m *memUploader) StreamArchive(_ context.Context, key string, fill func(*ziputil.Archive) error) (s3util.ArchiveResult, error) {
	m.calls++
	if m.err != nil {
		return s3util.ArchiveResult{Key: key}, m.err
	}
	var buf bytes.Buffer
	archive := ziputil.NewArchive(&buf, config.CompressionDeflate)
	if err := fill(archive); err != nil {
		archive.Abort()
		return s3util.ArchiveResult{Key: key}, err
	}
	if err := archive.Close(); err != nil {
		return s3util.ArchiveResult{Key: key}, err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = buf.Bytes()
	return s3util.ArchiveResult{Key: key, Entries: archive.Entries(), Bytes: int64(buf.Len())}, nil
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := ziputil.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestUploadSet(t *testing.T) {
	shortURLs := make([]string, 12)
	for i := range shortURLs {
		shortURLs[i] = fmt.Sprintf("link%02d", i)
	}

	for _, format := range []ImageFormat{FormatSVG, FormatPNG} {
		t.Run(string(format), func(t *testing.T) {
			s := newTestSynthesizer(t)
			up := &memUploader{}

			res, err := s.UploadSet(context.Background(), up, shortURLs, format, "job-42/generated_"+string(format)+".zip")
			if err != nil {
				t.Fatalf("UploadSet() error = %v", err)
			}
			if res.Entries != len(shortURLs) {
				t.Errorf("Entries = %d, want %d", res.Entries, len(shortURLs))
			}

			names := entryNames(t, up.objects[res.Key])
			if len(names) != len(shortURLs) {
				t.Fatalf("archive has %d entries, want %d", len(names), len(shortURLs))
			}
			for i, name := range names {
				want := fmt.Sprintf("qrcodes/link%02d.%s", i, format)
				if name != want {
					t.Errorf("entry %d = %q, want %q", i, name, want)
				}
			}
		})
	}
}

func TestUploadSet_RejectsFormatBeforeUpload(t *testing.T) {
	s := newTestSynthesizer(t)
	up := &memUploader{}

	for _, format := range []ImageFormat{FormatJPEG, ImageFormat("tiff")} {
		_, err := s.UploadSet(context.Background(), up, []string{"abc123"}, format, "k.zip")
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			t.Errorf("UploadSet(%q) = %v, want *GenerationError", format, err)
		}
	}
	if up.calls != 0 {
		t.Errorf("uploader called %d times, want 0", up.calls)
	}
}

func TestUploadSet_UploadFailure(t *testing.T) {
	s := newTestSynthesizer(t)
	cause := &s3util.UploadError{Key: "k.zip", Err: errors.New("denied")}
	up := &memUploader{err: cause}

	_, err := s.UploadSet(context.Background(), up, []string{"abc123"}, FormatSVG, "k.zip")
	if !errors.Is(err, cause) {
		t.Errorf("UploadSet() = %v, want %v", err, cause)
	}
}

func TestRenderSet_FailFast(t *testing.T) {
	s := newTestSynthesizer(t)
	up := &memUploader{}

	_, err := s.UploadSet(context.Background(), up, []string{"ok1", "bad/name", "ok2"}, FormatSVG, "k.zip")
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.URL != "bad/name" {
		t.Fatalf("UploadSet() = %v, want *GenerationError for bad/name", err)
	}
	if _, ok := up.objects["k.zip"]; ok {
		t.Error("a failed set must not produce an archive")
	}
}

func TestRenderSet_CancelledContext(t *testing.T) {
	s := newTestSynthesizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	archive := ziputil.NewArchive(&buf, config.CompressionDeflate)
	err := s.RenderSet(ctx, []string{"a", "b", "c"}, FormatSVG, archive)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RenderSet() = %v, want context.Canceled", err)
	}
}

func TestRenderToDirectory(t *testing.T) {
	s := newTestSynthesizer(t)
	dir := t.TempDir()

	if err := s.RenderToDirectory(context.Background(), []string{"abc123", "def456"}, FormatPNG, dir); err != nil {
		t.Fatalf("RenderToDirectory() error = %v", err)
	}
	for _, name := range []string{"abc123.png", "def456.png"} {
		info, err := os.Stat(filepath.Join(dir, EntryDir, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestEntryName(t *testing.T) {
	if got := EntryName("abc123", "svg"); got != "qrcodes/abc123.svg" {
		t.Errorf("EntryName() = %q", got)
	}
}
