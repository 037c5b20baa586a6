// jetbuild provisions a build environment and compiles PyTorch from source on
// an NVIDIA Jetson device.
//
// All options have defaults and can be set by JETBUILD_* environment variables
// or flags (flags win). Run with -interactive to review and edit the options
// in a form before the build starts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/gomlx/jetbuild/pkg/builder"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagWorkDir     = flag.String("workdir", "", "Workspace directory holding the source checkout. Defaults to the current directory.")
	flagRepo        = flag.String("repo", "", "Source repository URL.")
	flagBranch      = flag.String("branch", "", "Branch or tag to build.")
	flagEnvName     = flag.String("env", "", "Name of the conda environment to build in.")
	flagPython      = flag.String("python", "", "Python version for the environment (e.g.: 3.10).")
	flagJobs        = flag.Int("jobs", 0, "Parallel build jobs. Defaults to the host core count.")
	flagCudaArch    = flag.String("cuda-arch", "", "TORCH_CUDA_ARCH_LIST value. Defaults to the architectures of the detected Jetson module.")
	flagTensorRT    = flag.String("tensorrt", "", "TensorRT support: auto (probe the filesystem), on or off.")
	flagCMake       = flag.String("cmake", "", "CMake source: auto (conda CMake only when the local one is too old), on or off.")
	flagBuildDir    = flag.String("build-dir", "", "Build output directory name, relative to the source tree.")
	flagNoFile      = flag.Uint64("nofile", 0, "Soft open-file-descriptor limit to request before building.")
	flagDistributed = flag.Bool("distributed", true, "Build with USE_DISTRIBUTED.")
	flagInteractive = flag.Bool("interactive", false, "Review and edit the configuration in a form before building.")
	flagYes         = flag.Bool("yes", false, "Do not ask for confirmation before starting.")
	flagQuiet       = flag.Bool("quiet", false, "Only print errors.")
	flagVerbose     = flag.Bool("verbose", false, "Stream the output of every command.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	config, err := builder.DefaultConfig().FromEnv()
	if err != nil {
		klog.Fatalf("Failed on error: %+v", err)
	}
	applyFlags(&config)

	if *flagInteractive {
		if err := interactiveConfig(&config); err != nil {
			if err == errUserAborted {
				fmt.Println("Build aborted.")
				return
			}
			klog.Fatalf("Failed on error: %+v", err)
		}
	} else if !*flagYes {
		ok, err := confirmPlan(config)
		if err != nil {
			klog.Fatalf("Failed on error: %+v", err)
		}
		if !ok {
			fmt.Println("Build aborted.")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := builder.New(config).Run(ctx); err != nil {
		klog.Fatalf("Failed on error: %+v", err)
	}
	fmt.Printf("✅ Built and installed PyTorch %s into environment %q\n", config.Branch, config.EnvName)
}

func applyFlags(config *builder.Config) {
	setIfGiven := func(flagName string, apply func()) {
		if isFlagSet(flagName) {
			apply()
		}
	}
	setIfGiven("workdir", func() { config.WorkDir = *flagWorkDir })
	setIfGiven("repo", func() { config.Repo = *flagRepo })
	setIfGiven("branch", func() { config.Branch = *flagBranch })
	setIfGiven("env", func() { config.EnvName = *flagEnvName })
	setIfGiven("python", func() { config.PythonVersion = *flagPython })
	setIfGiven("jobs", func() { config.Jobs = *flagJobs })
	setIfGiven("cuda-arch", func() { config.CudaArchList = *flagCudaArch })
	setIfGiven("build-dir", func() { config.BuildDir = *flagBuildDir })
	setIfGiven("nofile", func() { config.NoFileLimit = *flagNoFile })
	setIfGiven("distributed", func() { config.Distributed = *flagDistributed })
	setIfGiven("tensorrt", func() {
		mode, err := builder.ModeString(*flagTensorRT)
		if err != nil {
			klog.Fatalf("Invalid -tensorrt value %q: want auto, on or off", *flagTensorRT)
		}
		config.TensorRT = mode
	})
	setIfGiven("cmake", func() {
		mode, err := builder.ModeString(*flagCMake)
		if err != nil {
			klog.Fatalf("Invalid -cmake value %q: want auto, on or off", *flagCMake)
		}
		config.CMakeSource = mode
	})
	if *flagQuiet {
		config.Verbosity = builder.Quiet
	}
	if *flagVerbose {
		config.Verbosity = builder.Verbose
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func confirmPlan(config builder.Config) (bool, error) {
	fmt.Printf(`jetbuild plan:
  source:      %s @ %s
  environment: %s (python %s)
  tensorrt:    %s
  cmake:       %s
  jobs:        %d
`, config.Repo, config.Branch, config.EnvName, config.PythonVersion,
		config.TensorRT, config.CMakeSource, config.Jobs)
	confirmed := false
	err := huh.NewConfirm().Title("Proceed?").Value(&confirmed).Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, errors.Wrap(err, "confirmation failed")
	}
	return confirmed, nil
}
