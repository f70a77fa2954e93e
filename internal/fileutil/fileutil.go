package fileutil

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFileMode copies src to dst and applies mode to a newly created dst.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	_, err := copyFile(src, dst, mode, nil)
	return err
}

// CopyFileVerified copies src to dst, then re-reads dst and compares its
// SHA-256 digest and size against what was read from src. dst is removed
// when the two disagree.
func CopyFileVerified(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcDigest := sha256.New()
	written, err := copyFile(src, dst, info.Mode().Perm(), srcDigest)
	if err != nil {
		return err
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}

	dstDigest, err := digestFile(dst)
	if err != nil {
		return fmt.Errorf("hash copy: %w", err)
	}
	if string(dstDigest) != string(srcDigest.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch for %s", filepath.Base(dst))
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode, digest hash.Hash) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	var r io.Reader = in
	if digest != nil {
		r = io.TeeReader(in, digest)
	}
	written, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return written, err
	}
	return written, out.Close()
}

func digestFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// TreeEntry is one regular file found below a dataset or output directory.
type TreeEntry struct {
	Path    string
	RelPath string
	Size    int64
	Mode    fs.FileMode
}

// WalkFiles lists every regular file below root in lexical order. Symlinks
// and other special files are skipped.
func WalkFiles(root string) ([]TreeEntry, error) {
	var entries []TreeEntry
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, TreeEntry{Path: path, RelPath: rel, Size: info.Size(), Mode: info.Mode().Perm()})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return entries, nil
}

// DirSize totals the regular files below root.
func DirSize(root string) (int64, error) {
	entries, err := WalkFiles(root)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

// Exists reports whether path exists. Only not-exist is treated as absence.
func Exists(path string) (bool, error) {
	switch _, err := os.Stat(path); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
