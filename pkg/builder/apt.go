package builder

import (
	"context"

	"github.com/pkg/errors"
)

// systemPackages is the fixed list of build dependencies installed via apt.
// cmake is deliberately absent: it is handled by the CMake source selection
// (the Ubuntu version shipped on Jetson is usually too old).
var systemPackages = []string{
	"build-essential",
	"ccache",
	"curl",
	"git",
	"libjpeg-dev",
	"libomp-dev",
	"libopenblas-dev",
	"libopenmpi-dev",
	"ninja-build",
	"python3-dev",
	"zlib1g-dev",
}

func (b *Builder) installSystemPackages(ctx context.Context) error {
	err := b.Runner.Run(ctx, "Updating apt package lists", Command{
		Name: "apt-get",
		Args: []string{"update"},
		Sudo: true,
	})
	if err != nil {
		return errors.WithMessage(err, "apt-get update failed")
	}
	err = b.Runner.Run(ctx, "Installing system packages", Command{
		Name: "apt-get",
		Args: append([]string{"install", "-y", "--no-install-recommends"}, systemPackages...),
		Sudo: true,
		Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
	})
	if err != nil {
		return errors.WithMessage(err, "apt-get install failed")
	}
	return nil
}
