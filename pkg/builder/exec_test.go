package builder

import (
	"context"
	"testing"
	"time"
)

func TestExecRunnerLongLine(t *testing.T) {
	// A single output line larger than the capture buffer must not stall the
	// runner: if the capture goroutine stops reading, the process blocks
	// writing to the pipe and Wait() never returns.
	runner := &ExecRunner{Verbosity: Quiet}
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(context.Background(), "long line", Command{
			Name: "sh",
			Args: []string{"-c", `head -c 2097152 /dev/zero | tr '\0' a; echo`},
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Run did not return on a single output line over the buffer size")
	}
}

func TestExecRunnerFailure(t *testing.T) {
	runner := &ExecRunner{Verbosity: Quiet}
	err := runner.Run(context.Background(), "failing", Command{
		Name: "sh",
		Args: []string{"-c", "echo boom; exit 3"},
	})
	if err == nil {
		t.Fatal("expected an error for a non-zero exit")
	}
}
