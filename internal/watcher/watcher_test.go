package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/ticktie/internal/fileid"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/storage"
)

type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) FileChanged(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, path)
}

func (r *recorder) FileRemoved(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
}

func (r *recorder) snapshot() (changed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changed...), append([]string(nil), r.removed...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_StartScansExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"), "%PDF")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")
	writeFile(t, filepath.Join(dir, ".hidden.pdf"), "skip")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub", "b.PNG"), "png")

	rec := &recorder{}
	w := New([]string{dir}, []string{".pdf", "png"}, true, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	changed, _ := rec.snapshot()
	sort.Strings(changed)
	want := []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "sub", "b.PNG")}
	if len(changed) != 2 || changed[0] != want[0] || changed[1] != want[1] {
		t.Errorf("changed = %v, want %v", changed, want)
	}
}

func TestWatcher_NonRecursiveSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub", "b.pdf"), "x")

	rec := &recorder{}
	w := New([]string{dir}, nil, false, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if changed, _ := rec.snapshot(); len(changed) != 0 {
		t.Errorf("changed = %v, want none", changed)
	}
}

func TestWatcher_DebouncesWritesAndReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New([]string{dir}, []string{".pdf"}, true, rec, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "scan.pdf")
	for i := 0; i < 3; i++ {
		writeFile(t, path, "%PDF part")
	}
	writeFile(t, filepath.Join(dir, "scan.pdf.part"), "partial")

	waitFor(t, func() bool {
		changed, _ := rec.snapshot()
		return len(changed) >= 1
	})
	time.Sleep(150 * time.Millisecond)
	if changed, _ := rec.snapshot(); len(changed) != 1 || changed[0] != path {
		t.Errorf("changed = %v, want one debounced event for %s", changed, path)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, removed := rec.snapshot()
		return len(removed) == 1 && removed[0] == path
	})
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox", "nested")
	w := New([]string{root}, nil, true, &recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"/a/b.pdf", []string{".pdf"}, true},
		{"/a/b.PDF", []string{"pdf"}, true},
		{"/a/b.jpeg", []string{".pdf", ".png"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}

type fakeUploader struct {
	uploads []models.DocumentInput
	removed []string
	fail    error
}

func (f *fakeUploader) Upload(_ context.Context, in models.DocumentInput) (*models.Document, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.uploads = append(f.uploads, in)
	return &models.Document{ID: in.ID, FileName: in.FileName, Status: models.StatusIdle}, nil
}

func (f *fakeUploader) RemoveDocument(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return storage.ErrNotFound
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inv.pdf")
	writeFile(t, path, "%PDF-1.4")
	up := &fakeUploader{}
	in := NewIngest(up, nil)
	ctx := context.Background()

	in.FileChanged(ctx, path)
	in.FileChanged(ctx, path)
	wantID, _ := fileid.FromPath(path)
	if len(up.uploads) != 2 || up.uploads[0].ID != wantID || up.uploads[1].ID != wantID {
		t.Fatalf("uploads = %+v, want two uploads under %s", up.uploads, wantID)
	}
	if up.uploads[0].FileName != "inv.pdf" || string(up.uploads[0].Content) != "%PDF-1.4" {
		t.Errorf("upload = %+v", up.uploads[0])
	}

	in.FileChanged(ctx, filepath.Join(dir, "missing.pdf"))
	up.fail = errors.New("too large")
	in.FileChanged(ctx, path)
	if len(up.uploads) != 2 {
		t.Errorf("uploads = %d, want unchanged", len(up.uploads))
	}

	in.FileRemoved(ctx, path)
	if len(up.removed) != 1 || up.removed[0] != wantID {
		t.Errorf("removed = %v", up.removed)
	}
}
