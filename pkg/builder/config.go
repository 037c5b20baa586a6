package builder

import (
	"os"
	"runtime"
	"strconv"

	"github.com/gomlx/jetbuild/internal/utils"
	"github.com/pkg/errors"
)

// Config are the knobs of a build run. Every field has a default and can be
// overridden by an environment variable (see FromEnv) and then by a CLI flag.
type Config struct {
	// WorkDir is where the source checkout and lock file live.
	WorkDir string

	// Repo and Branch select the PyTorch source to build.
	Repo   string
	Branch string

	// EnvName and PythonVersion configure the conda environment.
	EnvName       string
	PythonVersion string

	// Distributed toggles USE_DISTRIBUTED.
	Distributed bool

	// TensorRT selects TensorRT support: auto probes the filesystem, on/off
	// skip the probe and pass the explicit value.
	TensorRT Mode

	// TensorRTRoots are the candidate installation roots probed in order when
	// TensorRT is auto. Empty means DefaultTensorRTRoots.
	TensorRTRoots []string

	// CMakeSource selects where CMake comes from: auto installs a conda CMake
	// only when the local one is older than MinCMakeVersion, on always
	// installs it, off always uses the local one.
	CMakeSource Mode

	// BuildDir is the build output directory name, relative to the source tree.
	BuildDir string

	// Jobs bounds the ninja parallelism.
	Jobs int

	// NoFileLimit is the soft RLIMIT_NOFILE target, raised best-effort before
	// the build.
	NoFileLimit uint64

	// CudaArchList is the TORCH_CUDA_ARCH_LIST value. Empty means derive it
	// from the detected Jetson release.
	CudaArchList string

	Verbosity VerbosityLevel
}

// DefaultConfig returns the built-in defaults, before environment and flag
// overrides.
func DefaultConfig() Config {
	return Config{
		WorkDir:       ".",
		Repo:          "https://github.com/pytorch/pytorch.git",
		Branch:        "v2.3.0",
		EnvName:       "pytorch-build",
		PythonVersion: "3.10",
		Distributed:   true,
		TensorRT:      ModeAuto,
		CMakeSource:   ModeAuto,
		BuildDir:      "build",
		Jobs:          runtime.NumCPU(),
		NoFileLimit:   8192,
		Verbosity:     Normal,
	}
}

// FromEnv applies JETBUILD_* environment variable overrides on top of c and
// returns the result. Unset variables leave the corresponding field untouched.
func (c Config) FromEnv() (Config, error) {
	var err error
	c.EnvName = envString("JETBUILD_ENV_NAME", c.EnvName)
	c.PythonVersion = envString("JETBUILD_PYTHON", c.PythonVersion)
	c.Branch = envString("JETBUILD_BRANCH", c.Branch)
	c.Repo = envString("JETBUILD_REPO", c.Repo)
	c.BuildDir = envString("JETBUILD_BUILD_DIR", c.BuildDir)
	c.CudaArchList = envString("JETBUILD_CUDA_ARCH", c.CudaArchList)
	if c.Distributed, err = envBool("JETBUILD_DISTRIBUTED", c.Distributed); err != nil {
		return c, err
	}
	if c.Jobs, err = envInt("JETBUILD_MAX_JOBS", c.Jobs); err != nil {
		return c, err
	}
	if c.NoFileLimit, err = envUint("JETBUILD_NOFILE", c.NoFileLimit); err != nil {
		return c, err
	}
	if c.TensorRT, err = envMode("JETBUILD_TENSORRT", c.TensorRT); err != nil {
		return c, err
	}
	if c.CMakeSource, err = envMode("JETBUILD_CMAKE", c.CMakeSource); err != nil {
		return c, err
	}
	return c, nil
}

// Validate normalizes and checks the configuration. It is called once before
// the pipeline starts.
func (c *Config) Validate() error {
	var err error
	c.WorkDir, err = ReplaceTildeInDir(c.WorkDir)
	if err != nil {
		return err
	}
	c.EnvName = utils.NormalizeIdentifier(c.EnvName)
	if c.EnvName == "" {
		return errors.New("environment name must not be empty")
	}
	if c.Branch == "" {
		return errors.New("branch must not be empty")
	}
	if c.BuildDir == "" {
		return errors.New("build directory must not be empty")
	}
	if c.Jobs < 1 {
		return errors.Errorf("jobs must be >= 1, got %d", c.Jobs)
	}
	return nil
}

func envString(name, fallback string) string {
	if value, found := os.LookupEnv(name); found {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) (bool, error) {
	value, found := os.LookupEnv(name)
	if !found {
		return fallback, nil
	}
	switch value {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errors.Errorf("invalid boolean value %q for $%s", value, name)
}

func envInt(name string, fallback int) (int, error) {
	value, found := os.LookupEnv(name)
	if !found {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer value %q for $%s", value, name)
	}
	return parsed, nil
}

func envUint(name string, fallback uint64) (uint64, error) {
	value, found := os.LookupEnv(name)
	if !found {
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value %q for $%s", value, name)
	}
	return parsed, nil
}

func envMode(name string, fallback Mode) (Mode, error) {
	value, found := os.LookupEnv(name)
	if !found {
		return fallback, nil
	}
	mode, err := ModeString(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value %q for $%s (want auto, on or off)", value, name)
	}
	return mode, nil
}
