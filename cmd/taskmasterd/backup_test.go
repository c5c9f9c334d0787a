package main

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestBackupArchivesStateDir(t *testing.T) {
	root := t.TempDir()
	tasksDir := filepath.Join(root, ".taskmaster", "tasks")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tasksDir, "tasks.json"), []byte(`{"master":{"tasks":[]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tasksDir, "task_001.txt"), []byte("# Task ID: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "backup.tar.zst")
	if err := runBackup([]string{"-f", out, "-root", root}); err != nil {
		t.Fatalf("backup: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer zr.Close()

	names := map[string]bool{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		names[hdr.Name] = true
	}

	for _, want := range []string{".taskmaster/tasks/tasks.json", ".taskmaster/tasks/task_001.txt"} {
		if !names[want] {
			t.Errorf("archive missing %s, has %v", want, names)
		}
	}
}

func TestBackupRequiresOutput(t *testing.T) {
	if err := runBackup(nil); err == nil {
		t.Error("expected error without -f")
	}
}

func TestBackupMissingStateDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "backup.tar.zst")
	if err := runBackup([]string{"-f", out, "-root", t.TempDir()}); err == nil {
		t.Error("expected error for missing .taskmaster directory")
	}
}
