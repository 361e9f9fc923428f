// Package packaging builds the dependency archive uploaded alongside a deployment.
package packaging

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"enginectl/pkg/logx"
)

// ArchiveName is the object name of the dependency archive.
const ArchiveName = "dependencies.tar.gz"

// ErrEmptyArchive is returned when no package path was given.
var ErrEmptyArchive = errors.New("no extra packages to archive")

// skipDirs are never archived.
//
//nolint:gochecknoglobals // Static lookup table
var skipDirs = map[string]bool{
	".git":        true,
	"__pycache__": true,
	".venv":       true,
	".mypy_cache": true,
}

// Stats summarizes a written archive.
type Stats struct {
	Files int
	Bytes int64
}

// Write streams a gzip-compressed tar of packages to w. Package paths are
// resolved against root and stored under the name they were given, so an
// entry of "." archives root's contents as "./...". Absolute paths are
// stored by base name.
func Write(w io.Writer, root string, packages []string) (Stats, error) {
	var stats Stats
	if len(packages) == 0 {
		return stats, ErrEmptyArchive
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, pkg := range packages {
		src, name := resolve(root, pkg)
		if err := addTree(tw, src, name, &stats); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return stats, fmt.Errorf("failed to archive %s: %w", pkg, err)
		}
	}

	if err := tw.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish gzip stream: %w", err)
	}

	logx.NewLogger("packaging").Debug("archived %d files (%d bytes) from %d packages", stats.Files, stats.Bytes, len(packages))
	return stats, nil
}

func resolve(root, pkg string) (src, name string) {
	if filepath.IsAbs(pkg) {
		return filepath.Clean(pkg), filepath.Base(pkg)
	}
	name = path.Clean(filepath.ToSlash(pkg))
	return filepath.Join(root, pkg), strings.TrimPrefix(name, "/")
}

func addTree(tw *tar.Writer, src, name string, stats *Stats) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != src && skipDirs[d.Name()] {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		entry := name
		if rel != "." {
			entry = path.Join(name, filepath.ToSlash(rel))
			if name == "." {
				entry = "./" + filepath.ToSlash(rel)
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		// Symlinks and other special files are skipped.
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = entry
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := io.Copy(tw, f)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
}
