package builder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Command describes one external process invocation.
type Command struct {
	Name string   // Executable name or path.
	Args []string
	Dir  string   // Working directory, empty for the current one.
	Env  []string // Extra "KEY=VALUE" entries appended to the inherited environment.
	Sudo bool     // Prefix with sudo when not already running as root.
}

func (c Command) argv() (string, []string) {
	if c.Sudo && os.Geteuid() != 0 {
		return "sudo", append([]string{c.Name}, c.Args...)
	}
	return c.Name, c.Args
}

func (c Command) String() string {
	name, args := c.argv()
	return name + " " + strings.Join(args, " ")
}

// Runner executes external commands. Pipeline steps take a Runner so the
// decision logic can be tested without invoking real package managers or
// compilers.
type Runner interface {
	// Run executes the command, streaming or summarizing its output depending
	// on verbosity. The title is displayed while the command runs.
	Run(ctx context.Context, title string, cmd Command) error

	// Output executes the command and returns its standard output, for
	// commands whose output is parsed (version probes and the like).
	Output(ctx context.Context, cmd Command) (string, error)
}

// ExecRunner is the Runner used for real builds.
//
// At Verbose level command output is streamed to the terminal; at Normal level
// a spinner is shown with its title updated from the command's last output
// line; at Quiet level output is discarded unless the command fails.
type ExecRunner struct {
	Verbosity VerbosityLevel
}

var _ Runner = (*ExecRunner)(nil)

func (r *ExecRunner) command(ctx context.Context, cmd Command) *exec.Cmd {
	name, args := cmd.argv()
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	return c
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, title string, cmd Command) error {
	klog.V(1).Infof("Running: %s", cmd)
	c := r.command(ctx, cmd)

	if r.Verbosity == Verbose {
		fmt.Printf("> %s\n", cmd)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return errors.Wrapf(err, "command %q failed", cmd.String())
		}
		return nil
	}

	// Quiet and Normal levels: capture output, and at Normal level feed the
	// last line of output to the spinner title.
	pipeReader, pipeWriter := io.Pipe()
	c.Stdout = pipeWriter
	c.Stderr = pipeWriter

	var tail []string
	collect := func(titleUpdate chan<- string) {
		scanner := bufio.NewScanner(pipeReader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail = append(tail, line)
			if len(tail) > 20 {
				tail = tail[1:]
			}
			if titleUpdate != nil && strings.TrimSpace(line) != "" {
				titleUpdate <- fmt.Sprintf("%s: %s", title, line)
			}
		}
		if scanner.Err() != nil {
			// A single line longer than the scanner buffer stops the scan
			// early; keep draining the pipe so the process is never blocked
			// writing to it.
			_, _ = io.Copy(io.Discard, pipeReader)
		}
	}

	var runErr error
	execute := func(titleUpdate chan<- string) {
		if err := c.Start(); err != nil {
			runErr = errors.Wrapf(err, "failed to start command %q", cmd.String())
			ReportError(pipeWriter.Close())
			return
		}
		done := make(chan struct{})
		go func() {
			collect(titleUpdate)
			close(done)
		}()
		runErr = c.Wait()
		ReportError(pipeWriter.Close())
		<-done
	}

	if r.Verbosity == Normal {
		if err := runSpinner(title, execute); err != nil {
			return err
		}
	} else {
		execute(nil)
	}

	if runErr != nil {
		// Replay the captured tail so the failure is diagnosable.
		for _, line := range tail {
			fmt.Fprintln(os.Stderr, line)
		}
		return errors.Wrapf(runErr, "command %q failed", cmd.String())
	}
	if r.Verbosity == Normal {
		fmt.Printf("\r- %s%s\n", title, DeleteToEndOfLine)
	}
	return nil
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, cmd Command) (string, error) {
	klog.V(1).Infof("Running (capture): %s", cmd)
	c := r.command(ctx, cmd)
	out, err := c.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", errors.Wrapf(err, "command %q failed: %s", cmd.String(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", errors.Wrapf(err, "command %q failed", cmd.String())
	}
	return string(out), nil
}
