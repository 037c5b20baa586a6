package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SourceDir is where the checkout lives under the workspace.
func (b *Builder) SourceDir() string {
	name := strings.TrimSuffix(filepath.Base(b.Config.Repo), ".git")
	if name == "" || name == "." {
		name = "pytorch"
	}
	return filepath.Join(b.Config.WorkDir, name)
}

// BuildOutputDir is the CMake binary directory under the checkout.
func (b *Builder) BuildOutputDir() string {
	return filepath.Join(b.SourceDir(), b.Config.BuildDir)
}

// syncSource clones the repository at the configured branch, or updates an
// existing checkout to it. Submodules are always brought in sync: PyTorch's
// third_party tree moves between releases.
func (b *Builder) syncSource(ctx context.Context) error {
	srcDir := b.SourceDir()
	if _, err := os.Stat(filepath.Join(srcDir, ".git")); err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to stat %s", srcDir)
		}
		err = b.Runner.Run(ctx, fmt.Sprintf("Cloning %s@%s", b.Config.Repo, b.Config.Branch), Command{
			Name: "git",
			Args: []string{"clone", "--recursive", "--branch", b.Config.Branch, b.Config.Repo, srcDir},
		})
		if err != nil {
			return errors.WithMessage(err, "git clone failed")
		}
		return nil
	}

	for _, step := range []struct {
		title string
		args  []string
	}{
		{"Fetching " + b.Config.Repo, []string{"fetch", "--tags", "origin"}},
		{"Checking out " + b.Config.Branch, []string{"checkout", b.Config.Branch}},
		{"Updating submodules", []string{"submodule", "update", "--init", "--recursive"}},
	} {
		err := b.Runner.Run(ctx, step.title, Command{Name: "git", Args: step.args, Dir: srcDir})
		if err != nil {
			return errors.WithMessagef(err, "git %s failed", step.args[0])
		}
	}
	return nil
}
