package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	verrors "github.com/vaultscope/vaultscope/internal/errors"
)

const lockFileName = "vaultscope.lock"

// AcquireDirLock takes an exclusive advisory lock on the index
// directory so two processes cannot mutate the same index. The
// returned lock must be released with Unlock.
func AcquireDirLock(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, verrors.New(verrors.ErrCodeIndexLocked,
			fmt.Sprintf("index directory %s is locked by another process", dir), nil)
	}
	return lock, nil
}
