package builder

import (
	"path/filepath"

	"github.com/gomlx/jetbuild/internal/utils"
)

// TRTLayout distinguishes the two library directory layouts TensorRT ships
// with: Debian packages put libraries directly under lib/, the tarball
// distribution under targets/aarch64-linux-gnu/lib. The two are mutually
// exclusive choices and select different CMake flags.
type TRTLayout int

const (
	TRTLayoutLib TRTLayout = iota
	TRTLayoutTargets
)

var trtLayoutSubdirs = [...]string{
	TRTLayoutLib:     "lib",
	TRTLayoutTargets: filepath.Join("targets", "aarch64-linux-gnu", "lib"),
}

// TensorRT is the result of a successful probe: the root that matched and the
// directories derived from it.
type TensorRT struct {
	Root       string
	IncludeDir string
	LibDir     string
	Layout     TRTLayout
}

// DefaultTensorRTRoots are the candidate installation roots, in probe order.
// JetPack installs TensorRT under /usr; tarball installs commonly land in the
// other two.
func DefaultTensorRTRoots() []string {
	return []string{"/usr", "/usr/local/tensorrt", "/opt/tensorrt"}
}

// DetectTensorRT probes the candidate roots in order and returns the first
// root that has both the NvInfer.h header and at least one libnvinfer library
// under one of the two known layouts. It returns nil when nothing matches:
// there is no partial or uncertain state.
func DetectTensorRT(roots []string) *TensorRT {
	seen := utils.MakeSet[string](len(roots))
	for _, root := range roots {
		if root == "" || seen.Has(root) {
			continue
		}
		seen.Insert(root)

		includeDir := filepath.Join(root, "include")
		if !statOK(filepath.Join(includeDir, "NvInfer.h")) {
			continue
		}
		for layout, subdir := range trtLayoutSubdirs {
			libDir := filepath.Join(root, subdir)
			matches, err := filepath.Glob(filepath.Join(libDir, "libnvinfer.so*"))
			if err != nil || len(matches) == 0 {
				continue
			}
			return &TensorRT{
				Root:       root,
				IncludeDir: includeDir,
				LibDir:     libDir,
				Layout:     TRTLayout(layout),
			}
		}
	}
	return nil
}
