package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Uploader interface {
	UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
}

type localUploader struct {
	rootDir string
}

// NewLocalUploader stores objects as flat files directly under rootDir. The
// directory must already exist.
func NewLocalUploader(rootDir string) Uploader {
	return &localUploader{rootDir: rootDir}
}

// UploadBytes writes data to a temporary file next to the destination and
// renames it into place, so concurrent writers of the same name leave exactly
// one complete file behind.
func (u *localUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(objectPath)
	if name == "." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	dst := filepath.Join(u.rootDir, name)

	f, err := os.CreateTemp(u.rootDir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return dst, nil
}
