package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// chunk is just over half a megabyte so two writes overflow a 1MB limit.
var chunk = append(bytes.Repeat([]byte("x"), megabyte/2+1), '\n')

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shipyard.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if rw.Size() != 4 {
		t.Errorf("Size() = %d, want 4", rw.Size())
	}
	if _, err := rw.Write([]byte("new\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = rw.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "old\nnew\n" {
		t.Errorf("content = %q", data)
	}
	if rw.Path() != path {
		t.Errorf("Path() = %q", rw.Path())
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shipyard.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	// Every write after the first overflows, so each file holds one chunk.
	for i := 0; i < 6; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	for _, name := range []string{"shipyard.log", "shipyard.log.1", "shipyard.log.2"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "shipyard.log.3")); !os.IsNotExist(err) {
		t.Error("backups beyond MaxBackups should be removed")
	}
	if rw.Size() != int64(len(chunk)) {
		t.Errorf("Size() after rotation = %d, want %d", rw.Size(), len(chunk))
	}
}

func TestRotatingWriter_NoBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shipyard.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = rw.Close() }()

	for i := 0; i < 3; i++ {
		_, _ = rw.Write(chunk)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("no backup should be kept with MaxBackups=0")
	}
}

func TestRotatingWriter_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipyard.log")
	rw, err := NewRotatingWriter(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = rw.Write(chunk)
	}
	_ = rw.Close()

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("rotation should be disabled with MaxSizeMB=0")
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shipyard.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = rw.Write(chunk)
	}
	_ = rw.Close()

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed after compression")
	}
	f, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading gzip failed: %v", err)
	}
	if len(data) != len(chunk) {
		t.Errorf("decompressed size = %d, want %d", len(data), len(chunk))
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after close failed: %v", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Errorf("Write after close error = %v", err)
	}
}

func TestRotatingWriter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipyard.log")
	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}

	line := []byte("0123456789\n")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = rw.Write(line)
			}
		}()
	}
	wg.Wait()
	_ = rw.Close()

	data, _ := os.ReadFile(path)
	if len(data) != 8*50*len(line) {
		t.Errorf("file size = %d, want %d", len(data), 8*50*len(line))
	}
}
