package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FSStore is a filesystem-based implementation of Store. Artifacts live in a
// per-run layout:
//
//	<base>/
//	  <runID>/
//	    <name>/            (artifact payload, directory tree)
//	    <name>.meta.json   (Info sidecar)
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFSStore creates a filesystem-backed artifact store rooted at basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FSStore{basePath: basePath}, nil
}

// Upload stores the contents of dir under (runID, name).
func (fs *FSStore) Upload(ctx context.Context, runID, name, dir string) (*Info, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := validateName(runID); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("artifact source %s is not a directory", dir)
	}

	dest := fs.artifactPath(runID, name)
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("clear previous artifact: %w", err)
	}
	files, bytes, err := copyTree(ctx, dir, dest)
	if err != nil {
		return nil, fmt.Errorf("store artifact %s: %w", name, err)
	}

	info := &Info{Name: name, Files: files, Bytes: bytes, CreatedAt: time.Now()}
	meta, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact metadata: %w", err)
	}
	if err := os.WriteFile(dest+".meta.json", meta, 0o600); err != nil {
		return nil, fmt.Errorf("write artifact metadata: %w", err)
	}
	return info, nil
}

// Download copies the artifact (runID, name) into destDir.
func (fs *FSStore) Download(ctx context.Context, runID, name, destDir string) (*Info, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	src := fs.artifactPath(runID, name)
	if st, err := os.Stat(src); err != nil || !st.IsDir() {
		return nil, ErrNotFound{RunID: runID, Name: name}
	}
	if _, _, err := copyTree(ctx, src, destDir); err != nil {
		return nil, fmt.Errorf("restore artifact %s: %w", name, err)
	}
	info, err := fs.readInfo(runID, name)
	if err != nil {
		// Payload restored; a missing sidecar is not fatal.
		return &Info{Name: name}, nil
	}
	return info, nil
}

// List returns the artifacts uploaded during a run.
func (fs *FSStore) List(ctx context.Context, runID string) ([]Info, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	runDir := filepath.Join(fs.basePath, runID)
	entries, err := os.ReadDir(runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var infos []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := fs.readInfo(runID, e.Name())
		if err != nil {
			infos = append(infos, Info{Name: e.Name()})
			continue
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// Close releases resources.
func (fs *FSStore) Close() error { return nil }

func (fs *FSStore) artifactPath(runID, name string) string {
	return filepath.Join(fs.basePath, runID, name)
}

func (fs *FSStore) readInfo(runID, name string) (*Info, error) {
	data, err := os.ReadFile(fs.artifactPath(runID, name) + ".meta.json") // #nosec G304 - internal path
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// validateName rejects names that would escape the store layout.
func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact identifier: %q", name)
	}
	return nil
}

// copyTree recursively copies src into dst, returning file count and bytes.
func copyTree(ctx context.Context, src, dst string) (int, int64, error) {
	var files int
	var bytes int64
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		n, err := copyFile(path, target, info.Mode())
		if err != nil {
			return err
		}
		files++
		bytes += n
		return nil
	})
	return files, bytes, err
}

func copyFile(src, dst string, mode os.FileMode) (int64, error) {
	in, err := os.Open(src) // #nosec G304 - path derived from walked tree
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, err
	}
	out, err := os.Create(dst) // #nosec G304 - internal destination
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, os.Chmod(dst, mode.Perm())
}
