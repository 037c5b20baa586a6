package builder

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MinCMakeVersion is the documented minimum CMake version for the PyTorch
// build. The Ubuntu releases shipped on Jetson carry older versions, which is
// why the auto mode exists.
const MinCMakeVersion = "3.26.0"

var cmakeVersionRe = regexp.MustCompile(`cmake version (\d+(?:\.\d+)*)`)

// ParseCMakeVersion extracts the version (e.g. "3.26.4") from the output of
// `cmake --version`.
func ParseCMakeVersion(output string) (string, error) {
	m := cmakeVersionRe.FindStringSubmatch(output)
	if m == nil {
		return "", errors.Errorf("could not find a version in cmake output: %q", strings.TrimSpace(output))
	}
	return m[1], nil
}

// CompareVersions compares dotted numeric versions: -1 if a < b, 0 if equal,
// 1 if a > b. Missing components count as zero, so "3.26" == "3.26.0".
func CompareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	n := max(len(aParts), len(bParts))
	for i := 0; i < n; i++ {
		var aNum, bNum int
		if i < len(aParts) {
			aNum, _ = strconv.Atoi(aParts[i])
		}
		if i < len(bParts) {
			bNum, _ = strconv.Atoi(bParts[i])
		}
		if aNum != bNum {
			if aNum < bNum {
				return -1
			}
			return 1
		}
	}
	return 0
}

// NeedsCondaCMake decides whether CMake should be installed into the conda
// environment. Pure function over the mode and the locally detected version
// (empty when no local cmake was found).
func NeedsCondaCMake(mode Mode, localVersion string) bool {
	switch mode {
	case ModeOn:
		return true
	case ModeOff:
		return false
	}
	return localVersion == "" || CompareVersions(localVersion, MinCMakeVersion) < 0
}

// CMakeArgs assembles the configuration argument list from the configuration
// and the detected facts. The order is deterministic; conflicting flags are
// not expected and not deduplicated.
//
// pythonLibrary must be a path that exists on disk, or empty, in which case
// the -DPYTHON_LIBRARY flag is omitted entirely.
func CMakeArgs(cfg Config, py PythonFacts, pythonLibrary, nvccPath string, trt *TensorRT) []string {
	onOff := func(v bool) string {
		if v {
			return "ON"
		}
		return "OFF"
	}
	args := []string{
		"-GNinja",
		"-DCMAKE_BUILD_TYPE=Release",
		"-DBUILD_PYTHON=ON",
		"-DUSE_CUDA=ON",
		"-DUSE_CUDNN=ON",
		"-DUSE_DISTRIBUTED=" + onOff(cfg.Distributed),
		"-DTORCH_CUDA_ARCH_LIST=" + cfg.CudaArchList,
		"-DCMAKE_CUDA_COMPILER=" + nvccPath,
		"-DPYTHON_EXECUTABLE=" + py.Executable,
		"-DPYTHON_INCLUDE_DIR=" + py.IncludeDir,
	}
	if pythonLibrary != "" {
		args = append(args, "-DPYTHON_LIBRARY="+pythonLibrary)
	}

	switch cfg.TensorRT {
	case ModeOn:
		// Forced on without probing: let CMake's own find logic locate it.
		args = append(args, "-DUSE_TENSORRT=ON")
	case ModeOff:
		args = append(args, "-DUSE_TENSORRT=OFF")
	case ModeAuto:
		if trt == nil {
			args = append(args, "-DUSE_TENSORRT=OFF")
			break
		}
		args = append(args,
			"-DUSE_TENSORRT=ON",
			"-DTENSORRT_ROOT="+trt.Root,
			"-DTENSORRT_INCLUDE_DIR="+trt.IncludeDir,
		)
		if trt.Layout == TRTLayoutTargets {
			args = append(args, "-DTENSORRT_TARGETS_LIBRARY_DIR="+trt.LibDir)
		} else {
			args = append(args, "-DTENSORRT_LIBRARY_DIR="+trt.LibDir)
		}
	}
	return args
}

// configureWithRetry runs the CMake configuration command, retrying exactly
// once, blindly, on failure. This is a documented workaround for a transient
// first-run generator detection flake, not a resilience pattern: the second
// failure propagates.
func configureWithRetry(ctx context.Context, runner Runner, cmd Command) error {
	err := runner.Run(ctx, "Configuring build", cmd)
	if err == nil {
		return nil
	}
	klog.Warningf("CMake configuration failed, retrying once: %v", err)
	err = runner.Run(ctx, "Configuring build (retry)", cmd)
	if err != nil {
		return errors.WithMessage(err, "cmake configuration failed twice")
	}
	return nil
}

// resolveCMake finds the cmake executable to use, installing one into the
// conda environment when the source selection asks for it. lookPath is a
// parameter so the selection logic can be tested without a real cmake.
func (b *Builder) resolveCMake(ctx context.Context, lookPath func(string) (string, error)) error {
	localVersion := ""
	localExe, err := lookPath("cmake")
	if err == nil {
		output, err := b.Runner.Output(ctx, Command{Name: localExe, Args: []string{"--version"}})
		if err != nil {
			return errors.WithMessage(err, "failed to run local cmake")
		}
		localVersion, err = ParseCMakeVersion(output)
		if err != nil {
			return err
		}
	}

	if !NeedsCondaCMake(b.Config.CMakeSource, localVersion) {
		if localExe == "" {
			return errors.New("cmake not found on $PATH and the CMake source selection is off")
		}
		klog.V(1).Infof("Using local cmake %s at %s", localVersion, localExe)
		b.CMakeExe = localExe
		return nil
	}

	klog.V(1).Infof("Local cmake %q below minimum %s (or conda CMake forced), installing into environment",
		localVersion, MinCMakeVersion)
	err = b.Runner.Run(ctx, "Installing CMake into the environment", Command{
		Name: b.Conda.Exe,
		Args: []string{"install", "-y", "-n", b.Config.EnvName, "cmake>=" + MinCMakeVersion},
	})
	if err != nil {
		return errors.WithMessage(err, "failed to install CMake into the conda environment")
	}
	b.CMakeExe = "cmake" // Resolved inside the environment via `conda run`.
	return nil
}

// configure assembles the final argument list and invokes the build-system
// generator. All detection (TensorRT, interpreter paths, CMake source) happens
// here, before the arguments are assembled, so the flag list reflects the
// final state of every prior detection step.
func (b *Builder) configure(ctx context.Context) error {
	if err := b.resolveCMake(ctx, exec.LookPath); err != nil {
		return err
	}

	if b.Config.TensorRT == ModeAuto {
		roots := b.Config.TensorRTRoots
		if len(roots) == 0 {
			roots = DefaultTensorRTRoots()
		}
		b.TensorRT = DetectTensorRT(roots)
		if b.TensorRT == nil {
			klog.Warningf("TensorRT not found under %v, building without it", roots)
		} else {
			klog.V(1).Infof("TensorRT found at %s (libraries in %s)", b.TensorRT.Root, b.TensorRT.LibDir)
		}
	}

	pythonLibrary := b.Python.Library(statOK)
	args := CMakeArgs(b.Config, b.Python, pythonLibrary, b.NvccPath, b.TensorRT)
	args = append([]string{"-S", b.SourceDir(), "-B", b.BuildOutputDir()}, args...)

	cmd := b.Conda.RunIn(b.Config.EnvName, b.CMakeExe, args...)
	return configureWithRetry(ctx, b.Runner, cmd)
}
