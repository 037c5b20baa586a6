package builder

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const cudaHome = "/usr/local/cuda"

// ValidateHost checks that the reported OS/architecture pair is a supported
// Jetson target. It is a pure function so it can be exercised for every
// unsupported combination.
func ValidateHost(goos, goarch string) error {
	if goos != "linux" || goarch != "arm64" {
		return errors.Errorf(
			"jetbuild only supports NVIDIA Jetson devices (linux/arm64), but this host is %s/%s",
			goos, goarch)
	}
	return nil
}

// FindNvcc locates the CUDA compiler: the JetPack install location is probed
// first, then $PATH. A missing nvcc is an unrecoverable prerequisite failure.
func FindNvcc(lookPath func(string) (string, error)) (string, error) {
	candidate := filepath.Join(cudaHome, "bin", "nvcc")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	found, err := lookPath("nvcc")
	if err != nil {
		return "", errors.New(
			"nvcc not found in " + cudaHome + "/bin or $PATH: install the CUDA toolkit " +
				"(part of JetPack, `sudo apt install nvidia-jetpack`) and retry")
	}
	return found, nil
}

var nvccReleaseRe = regexp.MustCompile(`release (\d+\.\d+)`)

// ParseNvccVersion extracts the CUDA release (e.g. "12.2") from the output of
// `nvcc --version`.
func ParseNvccVersion(output string) (string, error) {
	m := nvccReleaseRe.FindStringSubmatch(output)
	if m == nil {
		return "", errors.Errorf("could not find a CUDA release in nvcc output: %q", strings.TrimSpace(output))
	}
	return m[1], nil
}

var l4tReleaseRe = regexp.MustCompile(` R(\d+) `)

// ParseL4TRelease extracts the Linux-for-Tegra major release from the contents
// of /etc/nv_tegra_release (e.g. "# R36 (release) ..." -> 36).
func ParseL4TRelease(data []byte) (int, error) {
	m := l4tReleaseRe.FindSubmatch(data)
	if m == nil {
		return 0, errors.Errorf("unexpected format for nv_tegra_release: %q", strings.TrimSpace(string(data)))
	}
	release, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid L4T release in nv_tegra_release")
	}
	return release, nil
}

// DetectL4TRelease finds the Jetson L4T major release. Jetson devices have
// JETSON_JETPACK="x.y.z" factory set, which takes precedence over
// /etc/nv_tegra_release.
func DetectL4TRelease() (int, error) {
	if jetpack := os.Getenv("JETSON_JETPACK"); jetpack != "" {
		major, _, _ := strings.Cut(jetpack, ".")
		release, err := strconv.Atoi(major)
		if err != nil {
			return 0, errors.Errorf("unexpected JETSON_JETPACK value %q", jetpack)
		}
		// JETSON_JETPACK carries the JetPack version; map to its L4T release.
		switch release {
		case 4:
			return 32, nil
		case 5:
			return 35, nil
		case 6:
			return 36, nil
		}
		return 0, errors.Errorf("unsupported JetPack major version %d", release)
	}
	data, err := os.ReadFile("/etc/nv_tegra_release")
	if err != nil {
		return 0, errors.Wrap(err, "not a Jetson device? failed to read /etc/nv_tegra_release")
	}
	return ParseL4TRelease(data)
}

// DefaultCudaArchForL4T maps an L4T major release to the CUDA architectures of
// the Jetson modules it ships on. Unknown releases default to Orin.
func DefaultCudaArchForL4T(release int) string {
	switch release {
	case 32:
		return "5.3;6.2;7.2" // Nano, TX2, Xavier
	case 35:
		return "7.2;8.7" // Xavier, Orin
	case 36:
		return "8.7" // Orin
	}
	return "8.7"
}

// HasNvidiaGPU tries to guess if there is an actual Nvidia GPU available.
// It checks for the device files in /dev/nvidia* and falls back to running
// nvidia-smi. On Jetson the integrated GPU may not expose /dev/nvidia*, so a
// negative answer is only worth a warning, never fatal.
var HasNvidiaGPU = sync.OnceValue[bool](func() bool {
	matches, err := filepath.Glob("/dev/nvidia*")
	if err != nil {
		klog.Errorf("Failed to search for files matching \"/dev/nvidia*\": %v", err)
	} else if len(matches) > 0 {
		return true
	}

	_, lookErr := exec.LookPath("nvidia-smi")
	if lookErr != nil {
		return false
	}
	output, cmdErr := exec.Command("nvidia-smi").CombinedOutput()
	if cmdErr != nil {
		return false
	}
	return strings.Contains(string(output), "NVIDIA-SMI")
})

// validatePlatform is the first pipeline step: architecture and toolchain
// checks, plus Jetson facts used later by the argument assembler.
func (b *Builder) validatePlatform(ctx context.Context) error {
	if err := ValidateHost(runtime.GOOS, runtime.GOARCH); err != nil {
		return err
	}

	nvcc, err := FindNvcc(exec.LookPath)
	if err != nil {
		return err
	}
	b.NvccPath = nvcc

	output, err := b.Runner.Output(ctx, Command{Name: nvcc, Args: []string{"--version"}})
	if err != nil {
		return errors.WithMessage(err, "failed to run nvcc")
	}
	b.CudaVersion, err = ParseNvccVersion(output)
	if err != nil {
		return err
	}

	release, err := DetectL4TRelease()
	if err != nil {
		klog.Warningf("Could not identify the Jetson L4T release: %v", err)
	} else {
		b.L4TRelease = release
	}
	if b.Config.CudaArchList == "" {
		b.Config.CudaArchList = DefaultCudaArchForL4T(b.L4TRelease)
	}

	if !HasNvidiaGPU() {
		klog.Warningf("No Nvidia GPU detected (no /dev/nvidia* and nvidia-smi not usable); " +
			"building anyway, but the runtime check at the end may fail")
	}

	klog.V(1).Infof("Platform ok: CUDA %s (nvcc at %s), L4T release %d, arch list %q",
		b.CudaVersion, b.NvccPath, b.L4TRelease, b.Config.CudaArchList)
	return nil
}
