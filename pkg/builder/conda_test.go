package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func TestResolveConda(t *testing.T) {
	notFound := func(string) (string, error) { return "", errors.New("not found") }
	never := func(string) bool { return false }

	t.Run("mamba preferred over conda", func(t *testing.T) {
		lookPath := func(name string) (string, error) {
			return "/usr/bin/" + name, nil // Both available.
		}
		tool, err := ResolveConda(lookPath, never)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tool.Name != "mamba" {
			t.Errorf("expected mamba to win, got %q", tool.Name)
		}
	})

	t.Run("conda when mamba is missing", func(t *testing.T) {
		lookPath := func(name string) (string, error) {
			if name == "conda" {
				return "/usr/bin/conda", nil
			}
			return "", errors.New("not found")
		}
		tool, err := ResolveConda(lookPath, never)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tool.Name != "conda" || tool.Exe != "/usr/bin/conda" {
			t.Errorf("unexpected tool %+v", tool)
		}
	})

	t.Run("fallback prefixes probed when PATH is empty", func(t *testing.T) {
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skipf("no home directory: %v", err)
		}
		wantExe := filepath.Join(home, "miniforge3", "bin", "mamba")
		tool, err := ResolveConda(notFound, func(path string) bool { return path == wantExe })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tool.Exe != wantExe {
			t.Errorf("expected %q, got %q", wantExe, tool.Exe)
		}
	})

	t.Run("nothing found is an error", func(t *testing.T) {
		if _, err := ResolveConda(notFound, never); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestParseEnvList(t *testing.T) {
	const data = `{"envs": ["/home/nvidia/miniforge3", "/home/nvidia/miniforge3/envs/pytorch-build"]}`

	found, err := ParseEnvList([]byte(data), "pytorch-build")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Error("expected the environment to be found")
	}

	found, err = ParseEnvList([]byte(data), "other-env")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("environment should not be found")
	}

	if _, err := ParseEnvList([]byte("not json"), "x"); err == nil {
		t.Error("expected a parse error")
	}
}

func TestParsePythonFacts(t *testing.T) {
	t.Run("complete output", func(t *testing.T) {
		const output = "/envs/pb/bin/python\n/envs/pb/include/python3.10\n/envs/pb/lib\nlibpython3.10.so\n"
		facts, err := ParsePythonFacts(output)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if facts.Executable != "/envs/pb/bin/python" || facts.LibName != "libpython3.10.so" {
			t.Errorf("unexpected facts %+v", facts)
		}
	})

	t.Run("static build without LIBDIR", func(t *testing.T) {
		const output = "/envs/pb/bin/python\n/envs/pb/include/python3.10\n\n\n"
		facts, err := ParsePythonFacts(output)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if facts.LibDir != "" || facts.LibName != "" {
			t.Errorf("expected empty library facts, got %+v", facts)
		}
	})

	t.Run("truncated output", func(t *testing.T) {
		if _, err := ParsePythonFacts("/envs/pb/bin/python\n"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestPythonFactsLibrary(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "libpython3.10.so")
	if err := os.WriteFile(libPath, []byte{}, 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("existing library resolves", func(t *testing.T) {
		facts := PythonFacts{LibDir: dir, LibName: "libpython3.10.so"}
		if got := facts.Library(statOK); got != libPath {
			t.Errorf("expected %q, got %q", libPath, got)
		}
	})

	t.Run("missing file yields empty", func(t *testing.T) {
		facts := PythonFacts{LibDir: dir, LibName: "libpython3.11.so"}
		if got := facts.Library(statOK); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})

	t.Run("unset facts yield empty", func(t *testing.T) {
		facts := PythonFacts{LibDir: dir}
		if got := facts.Library(statOK); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})
}

func TestCondaRunIn(t *testing.T) {
	tool := &CondaTool{Exe: "/usr/bin/mamba", Name: "mamba"}
	cmd := tool.RunIn("pytorch-build", "python", "-c", "print(1)")
	if cmd.Name != "/usr/bin/mamba" {
		t.Errorf("unexpected command name %q", cmd.Name)
	}
	want := []string{"run", "-n", "pytorch-build", "python", "-c", "print(1)"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("unexpected args %v", cmd.Args)
	}
	for i, arg := range want {
		if cmd.Args[i] != arg {
			t.Errorf("arg %d: expected %q, got %q", i, arg, cmd.Args[i])
		}
	}
}
