package main

import (
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/gomlx/jetbuild/pkg/builder"
	"github.com/pkg/errors"
)

var errUserAborted = errors.New("user aborted")

// interactiveConfig lets the user review and edit the configuration in a form
// before the build starts. Returns errUserAborted if the user bails out.
func interactiveConfig(config *builder.Config) error {
	tensorrt := config.TensorRT.String()
	cmakeSource := config.CMakeSource.String()
	jobs := strconv.Itoa(config.Jobs)
	confirmed := false

	modeOptions := huh.NewOptions(builder.ModeStrings()...)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Branch or tag to build").
				Value(&config.Branch),
			huh.NewInput().
				Title("Conda environment name").
				Value(&config.EnvName),
			huh.NewInput().
				Title("Python version").
				Value(&config.PythonVersion),
			huh.NewInput().
				Title("CUDA architecture list (empty = detect)").
				Value(&config.CudaArchList),
			huh.NewInput().
				Title("Parallel build jobs").
				Value(&jobs).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 {
						return errors.New("must be a positive integer")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("TensorRT support").
				Options(modeOptions...).
				Value(&tensorrt),
			huh.NewSelect[string]().
				Title("CMake source").
				Options(modeOptions...).
				Value(&cmakeSource),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Start the build?").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errUserAborted
		}
		return errors.Wrap(err, "interactive configuration failed")
	}
	if !confirmed {
		return errUserAborted
	}

	config.Jobs, _ = strconv.Atoi(jobs)
	var err error
	if config.TensorRT, err = builder.ModeString(tensorrt); err != nil {
		return err
	}
	config.CMakeSource, err = builder.ModeString(cmakeSource)
	return err
}
