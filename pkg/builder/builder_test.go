package builder

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

// fakeRunner records commands instead of executing them. Scripted errors are
// returned in order for Run calls; Output returns canned strings keyed by the
// command name.
type fakeRunner struct {
	runs      []Command
	runErrs   []error // Consumed in order; nil once exhausted.
	outputs   map[string]string
	outputErr error
}

func (r *fakeRunner) Run(_ context.Context, _ string, cmd Command) error {
	r.runs = append(r.runs, cmd)
	if len(r.runErrs) > 0 {
		err := r.runErrs[0]
		r.runErrs = r.runErrs[1:]
		return err
	}
	return nil
}

func (r *fakeRunner) Output(_ context.Context, cmd Command) (string, error) {
	if r.outputErr != nil {
		return "", r.outputErr
	}
	return r.outputs[cmd.Name], nil
}

func TestRunStepsFailFast(t *testing.T) {
	var executed []string
	record := func(name string, err error) Step {
		return Step{Name: name, Run: func(*Builder, context.Context) error {
			executed = append(executed, name)
			return err
		}}
	}

	t.Run("first step failure stops the pipeline", func(t *testing.T) {
		executed = nil
		steps := []Step{
			record("validate", errors.New("unsupported architecture")),
			record("install", nil),
			record("build", nil),
		}
		err := RunSteps(context.Background(), &Builder{}, steps)
		if err == nil {
			t.Fatal("expected error from failing step")
		}
		if len(executed) != 1 || executed[0] != "validate" {
			t.Errorf("expected only the validation step to run, got %v", executed)
		}
	})

	t.Run("all steps run on success", func(t *testing.T) {
		executed = nil
		steps := []Step{record("a", nil), record("b", nil), record("c", nil)}
		if err := RunSteps(context.Background(), &Builder{}, steps); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executed) != 3 {
			t.Errorf("expected 3 steps to run, got %v", executed)
		}
	})

	t.Run("cancelled context stops before the next step", func(t *testing.T) {
		executed = nil
		ctx, cancel := context.WithCancel(context.Background())
		steps := []Step{
			{Name: "cancel", Run: func(*Builder, context.Context) error {
				cancel()
				return nil
			}},
			record("after", nil),
		}
		err := RunSteps(ctx, &Builder{}, steps)
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
		if len(executed) != 0 {
			t.Errorf("no recorded step should have run after cancellation, got %v", executed)
		}
	})
}
