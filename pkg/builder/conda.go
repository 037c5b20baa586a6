package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CondaTool is the resolved environment manager: mamba when available (it
// solves environments much faster), plain conda otherwise.
type CondaTool struct {
	Exe  string // Full path or bare name resolvable via $PATH.
	Name string // "mamba" or "conda".
}

// miniforgeURL is the single bootstrap fallback when no environment manager is
// found: the conda-forge Miniforge installer for arm64.
const (
	miniforgeURL    = "https://github.com/conda-forge/miniforge/releases/latest/download/Miniforge3-Linux-aarch64.sh"
	miniforgePrefix = "~/miniforge3"
)

// condaFallbackPrefixes are well-known install prefixes probed when neither
// mamba nor conda is on $PATH.
var condaFallbackPrefixes = []string{
	miniforgePrefix,
	"~/mambaforge",
	"~/miniconda3",
	"/opt/conda",
}

// ResolveConda locates the environment manager, preferring mamba over conda,
// $PATH over the well-known install prefixes. lookPath and statOK are
// parameters so the resolution order can be tested without touching the host.
func ResolveConda(lookPath func(string) (string, error), statOK func(string) bool) (*CondaTool, error) {
	for _, name := range []string{"mamba", "conda"} {
		if exe, err := lookPath(name); err == nil {
			return &CondaTool{Exe: exe, Name: name}, nil
		}
	}
	for _, prefix := range condaFallbackPrefixes {
		prefix, err := ReplaceTildeInDir(prefix)
		if err != nil {
			return nil, err
		}
		for _, name := range []string{"mamba", "conda"} {
			exe := filepath.Join(prefix, "bin", name)
			if statOK(exe) {
				return &CondaTool{Exe: exe, Name: name}, nil
			}
		}
	}
	return nil, errors.New("neither mamba nor conda found on $PATH or in known install prefixes")
}

// BootstrapMiniforge downloads the Miniforge installer and runs it in batch
// mode. This is the single fallback discovery path: if resolution still fails
// afterwards, the run is aborted.
func BootstrapMiniforge(ctx context.Context, runner Runner, verbosity VerbosityLevel) error {
	installerPath, cached, err := DownloadURLToTemp(miniforgeURL, "Miniforge3-Linux-aarch64.sh", "", true, verbosity)
	if err != nil {
		return errors.WithMessage(err, "failed to download the Miniforge installer")
	}
	if !cached {
		defer func() { ReportError(os.Remove(installerPath)) }()
	}
	prefix, err := ReplaceTildeInDir(miniforgePrefix)
	if err != nil {
		return err
	}
	return runner.Run(ctx, "Installing Miniforge", Command{
		Name: "bash",
		Args: []string{installerPath, "-b", "-p", prefix},
	})
}

// ParseEnvList reports whether envName appears in the JSON output of
// `conda env list --json`.
func ParseEnvList(data []byte, envName string) (bool, error) {
	var envs struct {
		Envs []string `json:"envs"`
	}
	if err := json.Unmarshal(data, &envs); err != nil {
		return false, errors.Wrap(err, "failed to parse `env list --json` output")
	}
	for _, envPath := range envs.Envs {
		if filepath.Base(envPath) == envName {
			return true, nil
		}
	}
	return false, nil
}

// PythonFacts are the interpreter paths inside the build environment, queried
// once and read-only afterwards.
type PythonFacts struct {
	Executable string
	IncludeDir string
	LibDir     string // sysconfig LIBDIR, may be empty.
	LibName    string // sysconfig LDLIBRARY, may be empty.
}

// pythonFactsScript prints the four facts, one per line, in the order
// ParsePythonFacts expects them.
const pythonFactsScript = `import sys, sysconfig
print(sys.executable)
print(sysconfig.get_path("include"))
print(sysconfig.get_config_var("LIBDIR") or "")
print(sysconfig.get_config_var("LDLIBRARY") or "")`

// ParsePythonFacts parses the output of pythonFactsScript.
func ParsePythonFacts(output string) (PythonFacts, error) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) < 4 {
		return PythonFacts{}, errors.Errorf("expected 4 lines of interpreter facts, got %d: %q", len(lines), output)
	}
	facts := PythonFacts{
		Executable: strings.TrimSpace(lines[0]),
		IncludeDir: strings.TrimSpace(lines[1]),
		LibDir:     strings.TrimSpace(lines[2]),
		LibName:    strings.TrimSpace(lines[3]),
	}
	if facts.Executable == "" || facts.IncludeDir == "" {
		return PythonFacts{}, errors.Errorf("interpreter facts incomplete: %q", output)
	}
	return facts, nil
}

// Library returns the resolved libpython path, but only if the file actually
// exists on disk: a missing library means the corresponding CMake flag must be
// omitted entirely, never passed empty.
func (f PythonFacts) Library(statOK func(string) bool) string {
	if f.LibDir == "" || f.LibName == "" {
		return ""
	}
	libPath := filepath.Join(f.LibDir, f.LibName)
	if !statOK(libPath) {
		return ""
	}
	return libPath
}

// RunIn builds a Command that executes inside the named environment via
// `<tool> run -n <env>`.
func (t *CondaTool) RunIn(envName, name string, args ...string) Command {
	return Command{
		Name: t.Exe,
		Args: append([]string{"run", "-n", envName, name}, args...),
	}
}

func statOK(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// resolveEnvironment locates (or bootstraps) the environment manager, creates
// the build environment if needed, and queries the interpreter facts.
func (b *Builder) resolveEnvironment(ctx context.Context) error {
	tool, err := ResolveConda(exec.LookPath, statOK)
	if err != nil {
		klog.Warningf("%v; bootstrapping Miniforge", err)
		if err := BootstrapMiniforge(ctx, b.Runner, b.Config.Verbosity); err != nil {
			return err
		}
		tool, err = ResolveConda(exec.LookPath, statOK)
		if err != nil {
			return errors.WithMessage(err, "environment manager still missing after Miniforge bootstrap")
		}
	}
	b.Conda = tool
	klog.V(1).Infof("Using %s at %s", tool.Name, tool.Exe)

	// Create the build environment if it doesn't exist yet.
	output, err := b.Runner.Output(ctx, Command{Name: tool.Exe, Args: []string{"env", "list", "--json"}})
	if err != nil {
		return errors.WithMessagef(err, "failed to list %s environments", tool.Name)
	}
	exists, err := ParseEnvList([]byte(output), b.Config.EnvName)
	if err != nil {
		return err
	}
	if !exists {
		err = b.Runner.Run(ctx, fmt.Sprintf("Creating environment %q (python %s)", b.Config.EnvName, b.Config.PythonVersion),
			Command{
				Name: tool.Exe,
				Args: []string{"create", "-y", "-n", b.Config.EnvName, "python=" + b.Config.PythonVersion},
			})
		if err != nil {
			return errors.WithMessagef(err, "failed to create environment %q", b.Config.EnvName)
		}
	}

	// Query the interpreter paths used by the argument assembler.
	output, err = b.Runner.Output(ctx, b.Conda.RunIn(b.Config.EnvName, "python", "-c", pythonFactsScript))
	if err != nil {
		return errors.WithMessage(err, "failed to query interpreter facts")
	}
	b.Python, err = ParsePythonFacts(output)
	return err
}
