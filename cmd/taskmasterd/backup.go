package main

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// runBackup archives a project's .taskmaster directory (task store, reports,
// research docs) into a zstd-compressed tarball.
func runBackup(args []string) error {
	var outputPath string
	projectRoot := "."

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		case "-root":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -root")
			}
			i++
			projectRoot = args[i]
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: taskmasterd backup -f <output.tar.zst> [-root <project-root>]\n")
		return fmt.Errorf("missing -f flag")
	}

	stateDir := filepath.Join(projectRoot, ".taskmaster")
	if _, err := os.Stat(stateDir); err != nil {
		return fmt.Errorf("no state directory at %s: %w", stateDir, err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	if err := archiveDir(tw, stateDir); err != nil {
		return err
	}

	fmt.Printf("Backup written to %s\n", outputPath)
	return nil
}

func archiveDir(tw *tar.Writer, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(filepath.Dir(root), path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header %s: %w", path, err)
		}
		hdr.Name = strings.ReplaceAll(rel, string(filepath.Separator), "/")

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", path, err)
		}

		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer src.Close()

		if _, err := io.Copy(tw, src); err != nil {
			return fmt.Errorf("copy %s: %w", path, err)
		}
		return nil
	})
}
