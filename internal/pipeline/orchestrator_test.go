package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/qr-bulk-generator/internal/config"
	"github.com/fpang/qr-bulk-generator/internal/manifest"
	"github.com/fpang/qr-bulk-generator/internal/metrics"
	"github.com/fpang/qr-bulk-generator/internal/qrimage"
	"github.com/fpang/qr-bulk-generator/internal/s3util"
	"github.com/fpang/qr-bulk-generator/internal/scratch"
	"github.com/fpang/qr-bulk-generator/internal/ziputil"
)

// memStorage keeps uploaded objects in memory and can fail a chosen key.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	calls   []string
	failKey string
	failErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memStorage) record(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, key)
	if key == m.failKey {
		return &s3util.UploadError{Key: key, Err: m.failErr}
	}
	return nil
}

func (m *memStorage) put(key, contentType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
}

func (m *memStorage) UploadBytes(_ context.Context, buf []byte, contentType, key string) error {
	if err := m.record(key); err != nil {
		return err
	}
	m.put(key, contentType, append([]byte(nil), buf...))
	return nil
}

func (m *memStorage) StreamArchive(_ context.Context, key string, fill func(*ziputil.Archive) error) (s3util.ArchiveResult, error) {
	if err := m.record(key); err != nil {
		return s3util.ArchiveResult{Key: key}, err
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
	m.put(key, s3util.ContentTypeZip, buf.Bytes())
	return s3util.ArchiveResult{Key: key, Entries: archive.Entries(), Bytes: int64(buf.Len())}, nil
}

func (m *memStorage) ZipDirectory(ctx context.Context, dir, key string) (s3util.ArchiveResult, error) {
	return m.StreamArchive(ctx, key, func(a *ziputil.Archive) error {
		return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(dir, p)
			return a.Add(filepath.ToSlash(rel), data)
		})
	})
}

type notification struct {
	success  bool
	filePath string
	errMsg   string
}

type recordingNotifier struct {
	events []notification
}

func (r *recordingNotifier) Notify(_ context.Context, success bool, filePath, errorMessage string) {
	r.events = append(r.events, notification{success, filePath, errorMessage})
}

type harness struct {
	orch     *Orchestrator
	storage  *memStorage
	notifier *recordingNotifier
	scratch  *scratch.Manager
	stages   []Stage
	emf      *bytes.Buffer
}

func newHarness(t *testing.T, mode config.GenerationMode) *harness {
	t.Helper()
	brand, err := qrimage.BrandFor(config.BrandGov)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{ShortDomain: "go.example.sg", Mode: mode}

	h := &harness{
		storage:  newMemStorage(),
		notifier: &recordingNotifier{},
		scratch:  scratch.NewManager(t.TempDir()),
		emf:      &bytes.Buffer{},
	}
	h.orch = New(cfg, h.storage, qrimage.NewSynthesizer(brand, cfg.ShortDomain, qrimage.WithConcurrency(2)), h.notifier, h.scratch,
		WithStageHook(func(s Stage) { h.stages = append(h.stages, s) }),
		WithMetrics(func() *metrics.Recorder { return metrics.NewWithWriter(h.emf, "") }),
	)
	return h
}

func scenarioJob() BulkGenerationJob {
	return BulkGenerationJob{
		FilePath: "job-42",
		Mappings: []manifest.Mapping{{ShortURL: "abc123", LongURL: "https://example.com"}},
	}
}

func zipEntries(t *testing.T, data []byte) []string {
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

func stageNames(stages []Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}

func TestRun_Success(t *testing.T) {
	for _, mode := range []config.GenerationMode{config.ModeStream, config.ModeSpool} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, mode)

			artifacts, err := h.orch.Run(context.Background(), scenarioJob())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			wantKeys := []string{"job-42/generated.csv", "job-42/generated_svg.zip", "job-42/generated_png.zip"}
			if len(artifacts) != len(wantKeys) {
				t.Fatalf("artifacts = %+v", artifacts)
			}
			for i, key := range wantKeys {
				if artifacts[i].StorageKey != key {
					t.Errorf("artifact %d = %q, want %q", i, artifacts[i].StorageKey, key)
				}
				if _, ok := h.storage.objects[key]; !ok {
					t.Errorf("storage missing %s", key)
				}
			}
			if h.storage.types["job-42/generated.csv"] != "text/csv" {
				t.Errorf("csv content type = %q", h.storage.types["job-42/generated.csv"])
			}

			if got := zipEntries(t, h.storage.objects["job-42/generated_svg.zip"]); len(got) != 1 || got[0] != "qrcodes/abc123.svg" {
				t.Errorf("svg archive entries = %v", got)
			}
			if got := zipEntries(t, h.storage.objects["job-42/generated_png.zip"]); len(got) != 1 || got[0] != "qrcodes/abc123.png" {
				t.Errorf("png archive entries = %v", got)
			}

			if _, err := os.Stat(filepath.Join(h.scratch.Root(), "job-42")); !os.IsNotExist(err) {
				t.Errorf("scratch directory should be removed, stat err = %v", err)
			}

			if len(h.notifier.events) != 1 {
				t.Fatalf("expected exactly one notification, got %d", len(h.notifier.events))
			}
			if got := h.notifier.events[0]; got != (notification{true, "job-42", ""}) {
				t.Errorf("notification = %+v", got)
			}

			want := "Started,CsvUploaded,SvgSetUploaded,PngSetUploaded,ScratchCleaned,NotifiedSuccess"
			if got := stageNames(h.stages); got != want {
				t.Errorf("stages = %s, want %s", got, want)
			}
			if !strings.Contains(h.emf.String(), `"Status":"Success"`) {
				t.Errorf("EMF document missing success status: %s", h.emf.String())
			}
		})
	}
}

func TestRun_SvgUploadFailure(t *testing.T) {
	h := newHarness(t, config.ModeStream)
	cause := errors.New("503 slow down")
	h.storage.failKey = "job-42/generated_svg.zip"
	h.storage.failErr = cause

	_, err := h.orch.Run(context.Background(), scenarioJob())
	if !errors.Is(err, cause) {
		t.Fatalf("Run() = %v, want the original upload error", err)
	}
	var upErr *s3util.UploadError
	if !errors.As(err, &upErr) {
		t.Errorf("Run() = %v, want *s3util.UploadError", err)
	}

	for _, key := range h.storage.calls {
		if key == "job-42/generated_png.zip" {
			t.Error("PNG stage must not start after the SVG stage failed")
		}
	}

	if len(h.notifier.events) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(h.notifier.events))
	}
	got := h.notifier.events[0]
	if got.success || got.filePath != "job-42" || got.errMsg != err.Error() {
		t.Errorf("notification = %+v, want Failed with %q", got, err.Error())
	}

	want := "Started,CsvUploaded,NotifiedFailure"
	if stages := stageNames(h.stages); stages != want {
		t.Errorf("stages = %s, want %s", stages, want)
	}
	if _, err := os.Stat(filepath.Join(h.scratch.Root(), "job-42")); !os.IsNotExist(err) {
		t.Error("scratch directory should be removed on failure too")
	}
}

func TestRun_CsvUploadFailure(t *testing.T) {
	h := newHarness(t, config.ModeStream)
	h.storage.failKey = "job-42/generated.csv"
	h.storage.failErr = errors.New("denied")

	if _, err := h.orch.Run(context.Background(), scenarioJob()); err == nil {
		t.Fatal("Run() should fail")
	}
	if len(h.storage.calls) != 1 {
		t.Errorf("no stage after the CSV should run, calls = %v", h.storage.calls)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0].success {
		t.Errorf("notifications = %+v", h.notifier.events)
	}
}

func TestRun_InvalidJob(t *testing.T) {
	tests := []struct {
		name string
		job  BulkGenerationJob
	}{
		{"empty filePath", BulkGenerationJob{Mappings: scenarioJob().Mappings}},
		{"no mappings", BulkGenerationJob{FilePath: "job-42"}},
		{"traversal", BulkGenerationJob{FilePath: "../../etc", Mappings: scenarioJob().Mappings}},
		{"absolute", BulkGenerationJob{FilePath: "/etc/qr", Mappings: scenarioJob().Mappings}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.ModeStream)
			_, err := h.orch.Run(context.Background(), tt.job)
			if !errors.Is(err, ErrInvalidJob) {
				t.Errorf("Run() = %v, want ErrInvalidJob", err)
			}
			if len(h.storage.calls) != 0 {
				t.Errorf("no upload expected, got %v", h.storage.calls)
			}
			if len(h.notifier.events) != 1 || h.notifier.events[0].success {
				t.Errorf("expected one failure notification, got %+v", h.notifier.events)
			}
		})
	}
}

func TestRun_RenderFailureAbortsSet(t *testing.T) {
	h := newHarness(t, config.ModeStream)
	job := BulkGenerationJob{
		FilePath: "job-43",
		Mappings: []manifest.Mapping{
			{ShortURL: "ok", LongURL: "https://example.com"},
			{ShortURL: "bad/slash", LongURL: "https://example.com"},
		},
	}

	_, err := h.orch.Run(context.Background(), job)
	var genErr *qrimage.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("Run() = %v, want *qrimage.GenerationError", err)
	}
	if _, ok := h.storage.objects["job-43/generated_svg.zip"]; ok {
		t.Error("no partial SVG archive may be stored")
	}
}

func TestShortURLs(t *testing.T) {
	job := BulkGenerationJob{Mappings: []manifest.Mapping{{ShortURL: "a"}, {ShortURL: "b"}}}
	if got := strings.Join(job.ShortURLs(), ","); got != "a,b" {
		t.Errorf("ShortURLs() = %q", got)
	}
}
