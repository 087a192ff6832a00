package functions

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/iox"
)

// sha256Hex returns the lowercase hex SHA-256 of data. The hash names
// both the stored zip (<sha>.zip) and the install directory
// (<name>-<sha>), so an unchanged bundle reuses its stored zip. The
// install directory is recreated from scratch on every install.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// materializeZip stores the raw bundle under zipsDir keyed by content
// hash and returns its path. Re-uploading identical bytes is a no-op.
func materializeZip(zipsDir string, data []byte, sha string) (string, error) {
	if err := os.MkdirAll(zipsDir, 0o755); err != nil {
		return "", errs.Service("functions.materializeZip", err)
	}
	path := filepath.Join(zipsDir, sha+".zip")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errs.Service("functions.materializeZip", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errs.Service("functions.materializeZip", err)
	}
	return path, nil
}

// unzipTo extracts the bundle at zipPath into destDir. Entries that would
// escape destDir are rejected.
func unzipTo(destDir, zipPath string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return errs.Service("functions.unzipTo", err)
	}
	defer iox.DiscardClose(reader)

	for _, entry := range reader.File {
		if err := extractEntry(destDir, entry); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(destDir string, entry *zip.File) error {
	cleaned := filepath.Clean(entry.Name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || filepath.IsAbs(cleaned) {
		return errs.Invalid("functions.unzipTo", fmt.Sprintf("zip entry %q escapes install directory", entry.Name))
	}
	target := filepath.Join(destDir, cleaned)

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return errs.Service("functions.unzipTo", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errs.Service("functions.unzipTo", err)
	}

	src, err := entry.Open()
	if err != nil {
		return errs.Service("functions.unzipTo", err)
	}
	defer iox.DiscardClose(src)

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm()|0o600)
	if err != nil {
		return errs.Service("functions.unzipTo", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errs.Service("functions.unzipTo", err)
	}
	return dst.Close()
}

// ZipBundle builds an in-memory zip from file name → contents. Used by
// woofctl and tests to package single-file handlers.
func ZipBundle(files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
