package builder

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownloadURLToTemp(t *testing.T) {
	t.Run("truncated download leaves no partial file", func(t *testing.T) {
		cacheBase := t.TempDir()
		t.Setenv("XDG_CACHE_HOME", cacheBase)

		// Announce more bytes than are sent, so the client read fails mid-way.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "1048576")
			_, _ = w.Write([]byte("not even close"))
		}))
		defer server.Close()

		_, _, err := DownloadURLToTemp(server.URL, "partial.bin", "", true, Quiet)
		if err == nil {
			t.Fatal("expected an error for a truncated download")
		}
		cacheDir := filepath.Join(cacheBase, "jetbuild")
		for _, name := range []string{"partial.bin.tmp", "partial.bin"} {
			if _, statErr := os.Stat(filepath.Join(cacheDir, name)); !os.IsNotExist(statErr) {
				t.Errorf("expected %s to be removed, stat returned %v", name, statErr)
			}
		}
	})

	t.Run("successful download lands in the cache", func(t *testing.T) {
		cacheBase := t.TempDir()
		t.Setenv("XDG_CACHE_HOME", cacheBase)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("payload"))
		}))
		defer server.Close()

		path, cached, err := DownloadURLToTemp(server.URL, "ok.bin", "", true, Quiet)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cached {
			t.Error("a cache-enabled download should report cached after success")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read downloaded file: %v", err)
		}
		if string(data) != "payload" {
			t.Errorf("unexpected content %q", data)
		}
	})
}
