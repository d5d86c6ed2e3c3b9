package export

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const lockRetry = 50 * time.Millisecond

// Filesystem writes feeds below a root directory. Writers of the same name
// are serialised through a lock file next to the output, and the output is
// replaced atomically.
type Filesystem struct {
	root string
}

// NewFilesystem creates root if needed. An empty root means the working
// directory.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Errorf("create export dir: %w", err)
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

// Root returns the export directory.
func (f *Filesystem) Root() string { return f.root }

func (f *Filesystem) Save(ctx context.Context, name string, data []byte) (Info, error) {
	key, err := cleanName(name)
	if err != nil {
		return Info{}, err
	}
	dst := filepath.Join(f.root, filepath.FromSlash(key))
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, errors.Errorf("create export dir: %w", err)
	}

	lock := flock.New(dst + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return Info{}, errors.Errorf("lock %s: %w", key, err)
	}
	if !locked {
		return Info{}, errors.Errorf("lock %s: not acquired", key)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return Info{}, errors.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Info{}, errors.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return Info{}, errors.Errorf("chmod %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Info{}, errors.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, errors.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Info{}, errors.Errorf("rename %s: %w", key, err)
	}

	zerolog.Ctx(ctx).Debug().Str("path", dst).Str("size", humanize.Bytes(uint64(len(data)))).Msg("feed exported")

	return Info{
		Name:     key,
		Location: dst,
		Size:     int64(len(data)),
		SavedAt:  time.Now().UTC(),
	}, nil
}
