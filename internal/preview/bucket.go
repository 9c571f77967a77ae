package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// Bucket is the storage destination for preview copies. Keys use forward
// slashes regardless of host platform.
type Bucket interface {
	// Put stores one object under key.
	Put(ctx context.Context, key string, r io.Reader) error

	// PutDir stores every file under dir beneath the key prefix, returning
	// the number of objects written.
	PutDir(ctx context.Context, prefix, dir string) (int, error)

	// Close releases any resources held by the bucket.
	Close() error
}

// PreviewKey returns the bucket prefix for a pull request preview:
// <prefix>/<pr-number>.
func PreviewKey(prefix string, prNumber int) string {
	return path.Join(prefix, fmt.Sprintf("%d", prNumber))
}

// FSBucket is a filesystem-backed Bucket, used for local and self-hosted
// preview serving.
type FSBucket struct {
	root string
}

// NewFSBucket creates a filesystem bucket rooted at root.
func NewFSBucket(root string) (*FSBucket, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create bucket root: %w", err)
	}
	return &FSBucket{root: root}, nil
}

// Put stores one object under key.
func (b *FSBucket) Put(ctx context.Context, key string, r io.Reader) error {
	clean := path.Clean("/" + key)
	target := filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create bucket path: %w", err)
	}
	out, err := os.Create(target) // #nosec G304 - key cleaned above
	if err != nil {
		return fmt.Errorf("create bucket object: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("write bucket object %s: %w", key, err)
	}
	return out.Close()
}

// PutDir stores every file under dir beneath the key prefix.
func (b *FSBucket) PutDir(ctx context.Context, prefix, dir string) (int, error) {
	count := 0
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		in, err := os.Open(p) // #nosec G304 - path from walked tree
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		perr := b.Put(ctx, key, in)
		_ = in.Close()
		if perr != nil {
			return perr
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	slog.Info("Uploaded preview to bucket",
		slog.String("prefix", prefix),
		slog.Int("objects", count),
		logfields.Path(b.root))
	return count, nil
}

// Close releases resources.
func (b *FSBucket) Close() error { return nil }
