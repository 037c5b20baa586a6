// Package builder provisions a build environment and compiles PyTorch from
// source on NVIDIA Jetson (linux/arm64) devices.
//
// It is used by the command-line program github.com/gomlx/jetbuild/cmd/jetbuild.
//
// The work is organized as a strictly sequential pipeline of steps: platform
// validation, workspace locking, conda environment resolution, system package
// installation, source synchronization, CMake configuration, ninja build, and
// wheel installation plus a runtime smoke check. Any step failing aborts the
// whole run: there is no local recovery and no partial-result reporting.
package builder

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Builder holds the configuration and the facts detected by earlier pipeline
// steps. Detected facts are written once by their detection step and read-only
// afterwards.
type Builder struct {
	Config Config
	Runner Runner

	// Facts detected at run time:
	NvccPath    string       // Path to the CUDA compiler.
	CudaVersion string       // E.g. "12.2", parsed from `nvcc --version`.
	L4TRelease  int          // Jetson Linux-for-Tegra major release, 0 if unknown.
	Conda       *CondaTool   // Resolved environment manager (mamba or conda).
	Python      PythonFacts  // Interpreter paths inside the build environment.
	TensorRT    *TensorRT    // nil when not detected or detection disabled.
	CMakeExe    string       // CMake executable to use for configuration.

	lock *buildLock
}

// New creates a Builder for the given configuration, using the real process
// runner at the configuration's verbosity level.
func New(config Config) *Builder {
	return &Builder{
		Config: config,
		Runner: &ExecRunner{Verbosity: config.Verbosity},
	}
}

// Step is one stage of the build pipeline. Run is a method expression on
// Builder so the steps table reads as a plain list of stages.
type Step struct {
	Name string
	Run  func(b *Builder, ctx context.Context) error
}

// Steps returns the pipeline stages in execution order.
func (b *Builder) Steps() []Step {
	return []Step{
		{"validate platform", (*Builder).validatePlatform},
		{"lock workspace", (*Builder).lockWorkspace},
		{"resolve environment", (*Builder).resolveEnvironment},
		{"install system packages", (*Builder).installSystemPackages},
		{"sync source", (*Builder).syncSource},
		{"configure", (*Builder).configure},
		{"build", (*Builder).build},
		{"install wheel", (*Builder).installWheel},
		{"verify", (*Builder).verify},
	}
}

// Run executes the full pipeline.
func (b *Builder) Run(ctx context.Context) error {
	defer func() {
		if b.lock != nil {
			ReportError(b.lock.Unlock())
		}
	}()
	return RunSteps(ctx, b, b.Steps())
}

// RunSteps executes the given steps in order, stopping at the first failure.
func RunSteps(ctx context.Context, b *Builder, steps []Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "aborted before step %q", step.Name)
		}
		start := time.Now()
		klog.V(1).Infof("Step %q starting", step.Name)
		if err := step.Run(b, ctx); err != nil {
			return errors.WithMessagef(err, "step %q failed", step.Name)
		}
		klog.V(1).Infof("Step %q finished in %s", step.Name, time.Since(start).Round(time.Millisecond))
	}
	return nil
}
