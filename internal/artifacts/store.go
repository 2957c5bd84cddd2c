// Package artifacts publishes finished clips. The local store copies files
// into the artifacts directory; the MinIO store uploads them to a bucket.
// Both return an Artifact whose URI is recorded in the task result.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Artifact describes one published file.
type Artifact struct {
	Key    string `json:"key"`
	URI    string `json:"uri"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Store publishes a local file under key.
type Store interface {
	Name() string
	Put(ctx context.Context, localPath, key string) (Artifact, error)
}

// cleanKey rejects keys that escape the store root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty artifact key")
	}
	clean := path.Clean("/" + filepath.ToSlash(key))
	clean = strings.TrimLeft(clean, "/")
	if clean == "" || strings.HasPrefix(clean, "..") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid artifact key: %s", key)
	}
	return clean, nil
}

// LocalStore keeps artifacts on the filesystem.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates baseDir if needed.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("artifacts: base dir is empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create base dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Name implements Store.
func (s *LocalStore) Name() string { return "local" }

// Put copies localPath to <baseDir>/<key> through a temp file and rename.
func (s *LocalStore) Put(ctx context.Context, localPath, key string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return Artifact{}, err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return Artifact{}, fmt.Errorf("artifacts: mkdir: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: open source: %w", err)
	}
	defer src.Close()

	tempPath := fmt.Sprintf("%s.tmp-%d", fullPath, time.Now().UnixNano())
	dst, err := os.Create(tempPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: create temp file: %w", err)
	}
	defer func() {
		_ = dst.Close()
		_ = os.Remove(tempPath)
	}()

	hasher := sha256.New()
	written, err := io.Copy(dst, io.TeeReader(src, hasher))
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return Artifact{}, fmt.Errorf("artifacts: close file: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		return Artifact{}, fmt.Errorf("artifacts: rename temp file: %w", err)
	}

	return Artifact{
		Key:    clean,
		URI:    "file://" + filepath.ToSlash(fullPath),
		Size:   written,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}
