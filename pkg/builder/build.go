package builder

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// RaiseNoFileLimit raises the soft RLIMIT_NOFILE to target, clamped to the
// hard limit. The PyTorch link steps open a lot of object files at once and
// the Jetson default soft limit (1024) is not enough.
func RaiseNoFileLimit(target uint64) error {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return errors.Wrap(err, "failed to read RLIMIT_NOFILE")
	}
	if limit.Cur >= target {
		return nil
	}
	limit.Cur = min(target, limit.Max)
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return errors.Wrapf(err, "failed to raise RLIMIT_NOFILE to %d", limit.Cur)
	}
	return nil
}

// build runs the compiler/linker pipeline. The only parallelism in the whole
// program is the job count passed to ninja; any compilation error is fatal.
func (b *Builder) build(ctx context.Context) error {
	// Best-effort: a build may still succeed with the default limit.
	if err := RaiseNoFileLimit(b.Config.NoFileLimit); err != nil {
		klog.Warningf("Could not raise the open-file limit: %v", err)
	}
	err := b.Runner.Run(ctx, "Building (this takes hours on a Jetson)", b.Conda.RunIn(
		b.Config.EnvName,
		"ninja", "-C", b.BuildOutputDir(), "-j", strconv.Itoa(b.Config.Jobs),
	))
	if err != nil {
		return errors.WithMessage(err, "build failed")
	}
	return nil
}
