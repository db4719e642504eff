package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PartialSuffix marks files that are still being written.
const PartialSuffix = ".partial"

// WriteOptions controls AtomicWriteFile.
type WriteOptions struct {
	Perm  os.FileMode
	Fsync bool
	// DeferDirSync leaves the directory fsync after the rename to the
	// caller, who batches it over many files.
	DeferDirSync bool
	Retry        *RetryConfig
}

// AtomicWriteFile writes data to a temp file next to path and renames it
// into place. Readers only ever see the old or the new content.
func AtomicWriteFile(path string, data []byte, opts WriteOptions) error {
	if opts.Perm == 0 {
		opts.Perm = 0o644
	}
	dir := filepath.Dir(path)
	if err := RetryableMkdirAll(dir, 0o755, opts.Retry); err != nil {
		return ClassifyFSError(fmt.Errorf("create %s: %w", dir, err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return ClassifyFSError(fmt.Errorf("create temp for %s: %w", path, err))
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return ClassifyFSError(fmt.Errorf("write %s: %w", tmpName, err))
	}
	if opts.Fsync {
		if err := tmp.Sync(); err != nil {
			cleanup()
			return ClassifyFSError(fmt.Errorf("fsync %s: %w", tmpName, err))
		}
	}
	if err := tmp.Chmod(opts.Perm); err != nil {
		cleanup()
		return ClassifyFSError(fmt.Errorf("chmod %s: %w", tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ClassifyFSError(fmt.Errorf("close %s: %w", tmpName, err))
	}
	if err := RetryableRename(tmpName, path, opts.Retry); err != nil {
		os.Remove(tmpName)
		return ClassifyFSError(fmt.Errorf("rename into %s: %w", path, err))
	}
	if opts.Fsync && !opts.DeferDirSync {
		return SyncDir(dir)
	}
	return nil
}

// SyncDir fsyncs a directory so a preceding rename survives a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !isUnsupportedSync(err) {
		return fmt.Errorf("fsync dir %s: %w", dir, err)
	}
	return nil
}

func isUnsupportedSync(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "not supported")
}

// ShardPath returns <root>/<id[0:2]>/<id[2:4]>/.../<id><ext> with depth
// two-character levels. Depth 0 keeps everything in root.
func ShardPath(root, id, ext string, depth int) string {
	parts := make([]string, 0, depth+2)
	parts = append(parts, root)
	key := strings.ReplaceAll(id, "-", "")
	for i := 0; i < depth && (i+1)*2 <= len(key); i++ {
		parts = append(parts, key[i*2:(i+1)*2])
	}
	parts = append(parts, id+ext)
	return filepath.Join(parts...)
}
