package builder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FindWheel expects exactly one .whl file under distDir and returns its path.
// Zero or multiple wheels is an error: the caller cannot guess which artifact
// the build produced.
func FindWheel(distDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(distDir, "*.whl"))
	if err != nil {
		return "", errors.Wrapf(err, "failed to scan %s for wheels", distDir)
	}
	switch len(matches) {
	case 0:
		return "", errors.Errorf("no wheel found under %s: did the build produce an artifact?", distDir)
	case 1:
		return matches[0], nil
	}
	return "", errors.Errorf("expected exactly one wheel under %s, found %d: %s",
		distDir, len(matches), strings.Join(matches, ", "))
}

// installWheel installs the produced wheel into the build environment.
func (b *Builder) installWheel(ctx context.Context) error {
	wheel, err := FindWheel(filepath.Join(b.BuildOutputDir(), "dist"))
	if err != nil {
		return err
	}
	err = b.Runner.Run(ctx, fmt.Sprintf("Installing %s", filepath.Base(wheel)), b.Conda.RunIn(
		b.Config.EnvName,
		"python", "-m", "pip", "install", "--force-reinstall", wheel,
	))
	if err != nil {
		return errors.WithMessage(err, "wheel installation failed")
	}
	return nil
}

// smokeScript is the minimal runtime self-check: the import alone exercises
// the produced shared libraries, and the CUDA probe confirms the GPU path.
const smokeScript = `import torch
print("torch", torch.__version__)
print("cuda available:", torch.cuda.is_available())`

// verify runs the runtime self-check inside the environment.
func (b *Builder) verify(ctx context.Context) error {
	output, err := b.Runner.Output(ctx, b.Conda.RunIn(b.Config.EnvName, "python", "-c", smokeScript))
	if err != nil {
		return errors.WithMessage(err, "runtime self-check failed")
	}
	fmt.Print(output)
	return nil
}
