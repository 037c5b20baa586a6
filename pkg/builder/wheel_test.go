package builder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindWheel(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty dist dir", func(t *testing.T) {
		if _, err := FindWheel(dir); err == nil {
			t.Error("expected an error for an empty dist directory")
		}
	})

	t.Run("single wheel", func(t *testing.T) {
		wheel := filepath.Join(dir, "torch-2.3.0-cp310-cp310-linux_aarch64.whl")
		if err := os.WriteFile(wheel, []byte{}, 0644); err != nil {
			t.Fatal(err)
		}
		got, err := FindWheel(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != wheel {
			t.Errorf("expected %q, got %q", wheel, got)
		}
	})

	t.Run("multiple wheels are ambiguous", func(t *testing.T) {
		other := filepath.Join(dir, "torch-2.2.0-cp310-cp310-linux_aarch64.whl")
		if err := os.WriteFile(other, []byte{}, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := FindWheel(dir); err == nil {
			t.Error("expected an error for multiple wheels")
		}
	})

	t.Run("non-wheel files are ignored", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte{}, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := FindWheel(dir); err == nil {
			t.Error("expected an error when only non-wheel files are present")
		}
	})
}
