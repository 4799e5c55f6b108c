package fileid

import (
	"os"
	"path/filepath"
	"testing"
)

func mustID(t *testing.T, path string) string {
	t.Helper()
	id, err := FromPath(path)
	if err != nil {
		t.Fatalf("FromPath(%q): %v", path, err)
	}
	return id
}

func TestFromPath(t *testing.T) {
	id := mustID(t, "/inbox/invoice-001.pdf")
	if !IsDropID(id) {
		t.Errorf("IsDropID(%q) = false", id)
	}
	if mustID(t, "/inbox/invoice-001.pdf") != id {
		t.Error("same path should give same id")
	}
	if mustID(t, "/inbox/invoice-002.pdf") == id {
		t.Error("different paths should give different ids")
	}
}

func TestFromPath_normalized(t *testing.T) {
	id := mustID(t, "/inbox/scans/a.pdf")
	for _, p := range []string{"/inbox/scans/a.pdf/", "/inbox/./scans/a.pdf", "/inbox/other/../scans/a.pdf"} {
		if got := mustID(t, p); got != id {
			t.Errorf("FromPath(%q) = %q, want %q", p, got, id)
		}
	}
}

func TestFromPath_relativeResolvesAgainstWorkingDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if mustID(t, "a.pdf") != mustID(t, filepath.Join(wd, "a.pdf")) {
		t.Error("relative path should match its absolute form")
	}
}

func TestIsDropID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"drop-0123456789abcdef0123456789abcdef", true},
		{"drop-short", false},
		{"3f2b8c1e-4f6a-4c7d-9e8f-0a1b2c3d4e5f", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDropID(tt.id); got != tt.want {
			t.Errorf("IsDropID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
