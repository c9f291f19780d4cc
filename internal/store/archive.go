package store

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Export writes every run directory started at or after since to w as a
// zstd-compressed tar stream. It returns the number of runs written.
func (a *Artifacts) Export(w io.Writer, since time.Time) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	entries, err := os.ReadDir(a.root)
	if err != nil {
		zw.Close()
		return 0, fmt.Errorf("failed to list content dir: %w", err)
	}
	runs := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		started, ok := parseRunDir(e.Name())
		if !ok || started.Before(since) {
			continue
		}
		if err := addDir(tw, a.root, e.Name()); err != nil {
			zw.Close()
			return runs, err
		}
		runs++
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return runs, err
	}
	return runs, zw.Close()
}

// parseRunDir recovers the start time from a run directory name.
func parseRunDir(name string) (time.Time, bool) {
	stamp, _, ok := strings.Cut(name, "_")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dirTimeFormat, stamp, time.Local)
	return t, err == nil
}

func addDir(tw *tar.Writer, root, dir string) error {
	return filepath.WalkDir(filepath.Join(root, dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// ListArchive reads back the file names in an export stream.
func ListArchive(r io.Reader) ([]string, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
	}
}
