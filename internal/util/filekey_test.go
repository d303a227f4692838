package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Notes.MD")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	facts, err := StatFile(path)
	if err != nil {
		t.Fatalf("StatFile failed: %v", err)
	}
	if facts.Filename != "Notes.MD" {
		t.Errorf("Filename = %q, want Notes.MD", facts.Filename)
	}
	if facts.Ext != ".md" {
		t.Errorf("Ext = %q, want .md", facts.Ext)
	}
	if facts.SizeBytes != 5 {
		t.Errorf("SizeBytes = %d, want 5", facts.SizeBytes)
	}
	if !filepath.IsAbs(facts.Path) {
		t.Errorf("Path %q is not absolute", facts.Path)
	}
}

func TestStatFile_Vanished(t *testing.T) {
	_, err := StatFile(filepath.Join(t.TempDir(), "gone.txt"))
	if !errors.Is(err, ErrFileVanished) {
		t.Errorf("expected ErrFileVanished, got %v", err)
	}
}

func TestStatFile_Directory(t *testing.T) {
	_, err := StatFile(t.TempDir())
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for a directory, got %v", err)
	}
}

func TestNormalizeExt(t *testing.T) {
	tests := map[string]string{
		"":      "",
		".TXT":  ".txt",
		"pdf":   ".pdf",
		" .Md ": ".md",
	}
	for in, want := range tests {
		if got := NormalizeExt(in); got != want {
			t.Errorf("NormalizeExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTimesDiffer(t *testing.T) {
	base := UnixSeconds(time.Unix(1700000000, 0))
	tol := 100 * time.Millisecond

	if TimesDiffer(base, base+0.05, tol) {
		t.Error("50ms jitter should be within tolerance")
	}
	if !TimesDiffer(base, base+5, tol) {
		t.Error("5s difference should exceed tolerance")
	}
	if !TimesDiffer(base+5, base, tol) {
		t.Error("difference must be symmetric")
	}
}

func TestGenerateContentHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	hash, err := GenerateContentHash(path)
	if err != nil {
		t.Fatalf("GenerateContentHash failed: %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if hash != want {
		t.Errorf("hash = %s, want %s", hash, want)
	}
}
