package builder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// buildLock serializes builds on the same workspace: apt, git and cmake all
// mutate shared state, so a second concurrent run would corrupt the first.
// Make sure to always call Unlock() when done -- recommend using defer.
type buildLock struct {
	lockPath string
	flock    *flock.Flock
}

var (
	// BuildLockTimeout is the timeout for acquiring the workspace lock.
	BuildLockTimeout = 5 * time.Minute

	// RetryLockPeriod is the period to wait between attempts to acquire the lock.
	RetryLockPeriod = 1000 * time.Millisecond
)

// acquireBuildLock takes an exclusive file lock under workDir, waiting up to
// BuildLockTimeout for a concurrent run to finish.
func acquireBuildLock(workDir string) (*buildLock, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create workspace directory %q", workDir)
	}
	lockPath := filepath.Join(workDir, ".jetbuild.lock")
	l := &buildLock{lockPath: lockPath, flock: flock.New(lockPath)}
	timeOut := time.After(BuildLockTimeout)
	for {
		ok, err := l.flock.TryLock()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to acquire workspace lock %q", lockPath)
		}
		if ok {
			return l, nil
		}
		select {
		case <-timeOut:
			return nil, errors.Errorf(
				"timeout waiting for workspace lock %q: either another build is in progress, "+
					"or the lock file is stale, please manually remove it and retry", lockPath)
		case <-time.After(RetryLockPeriod):
			continue
		}
	}
}

// Unlock releases the workspace lock.
func (l *buildLock) Unlock() error {
	if l == nil {
		return nil
	}
	err := l.flock.Unlock()
	if err != nil {
		err = errors.Wrapf(err, "failed to unlock %q: please clean up the lock manually", l.lockPath)
	}
	return err
}

func (b *Builder) lockWorkspace(_ context.Context) error {
	if err := b.Config.Validate(); err != nil {
		return err
	}
	lock, err := acquireBuildLock(b.Config.WorkDir)
	if err != nil {
		return err
	}
	b.lock = lock
	return nil
}
