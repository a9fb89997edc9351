package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func collect(t *testing.T, s *Scanner) []Result {
	t.Helper()
	var got []Result
	for r := range s.Scan(context.Background()) {
		got = append(got, r)
	}
	return got
}

func TestScanner_EmptyRoot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New(Options{Roots: []string{dir}})

	results := collect(t, s)
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
}

func TestScanner_FiltersBySize(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tiny.txt"), []byte("x"))
	writeFile(t, filepath.Join(dir, "big.txt"), make([]byte, 2048))

	s := New(Options{Roots: []string{dir}, MinSize: DefaultMinSize})
	results := collect(t, s)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Record == nil || filepath.Base(results[0].Record.Path) != "big.txt" {
		t.Errorf("expected big.txt, got %+v", results[0])
	}
}

func TestScanner_FiltersByExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tool.exe"), make([]byte, 2048))
	writeFile(t, filepath.Join(dir, "doc.txt"), make([]byte, 2048))

	s := New(Options{Roots: []string{dir}})
	results := collect(t, s)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if filepath.Ext(results[0].Record.Path) != ".txt" {
		t.Errorf("expected .txt survivor, got %s", results[0].Record.Path)
	}
}

func TestScanner_SkipsExcludedDirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git", "config"), make([]byte, 2048))
	writeFile(t, filepath.Join(dir, "node_modules", "pkg", "index.js"), make([]byte, 2048))
	writeFile(t, filepath.Join(dir, "keep.txt"), make([]byte, 2048))

	s := New(Options{Roots: []string{dir}})
	results := collect(t, s)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if filepath.Base(results[0].Record.Path) != "keep.txt" {
		t.Errorf("expected keep.txt, got %s", results[0].Record.Path)
	}
}

func TestScanner_HashesContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i % 251)
	}
	writeFile(t, filepath.Join(dir, "data.bin"), content)

	s := New(Options{Roots: []string{dir}})
	results := collect(t, s)

	if len(results) != 1 || results[0].Record == nil {
		t.Fatalf("expected 1 record, got %+v", results)
	}
	if len(results[0].Record.SHA256) != 64 {
		t.Errorf("expected 64-char hex hash, got %q", results[0].Record.SHA256)
	}
}

func TestScanner_RespectsIgnoreFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".organizeignore"), []byte("*.log\n"))
	writeFile(t, filepath.Join(dir, "debug.log"), make([]byte, 2048))
	writeFile(t, filepath.Join(dir, "keep.txt"), make([]byte, 2048))

	s := New(Options{Roots: []string{dir}})
	results := collect(t, s)

	if len(results) != 1 {
		t.Fatalf("expected 1 result (ignore file itself is too small to pass min size), got %d", len(results))
	}
	if filepath.Base(results[0].Record.Path) != "keep.txt" {
		t.Errorf("expected keep.txt, got %s", results[0].Record.Path)
	}
}

func TestScanner_MultipleRootsPreserveOrder(t *testing.T) {
	t.Parallel()
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirA, "a.txt"), make([]byte, 2048))
	writeFile(t, filepath.Join(dirB, "b.txt"), make([]byte, 2048))

	s := New(Options{Roots: []string{dirA, dirB}})
	results := collect(t, s)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if filepath.Base(results[0].Record.Path) != "a.txt" || filepath.Base(results[1].Record.Path) != "b.txt" {
		t.Errorf("expected a.txt then b.txt, got %s then %s", results[0].Record.Path, results[1].Record.Path)
	}
}

func TestScanner_ReportsUnreadableDirectory(t *testing.T) {
	t.Parallel()
	s := New(Options{Roots: []string{filepath.Join(t.TempDir(), "does-not-exist")}})
	results := collect(t, s)

	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected a single error result, got %+v", results)
	}
}
