package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

// DownloadURLToTemp downloads a file from a given URL to a temporary file.
//
// It displays a spinner while downloading and outputs some information about
// the download.
//
// If useCache is true, it will save the file in a cache directory and try to
// reuse it if already downloaded.
//
// If wantSHA256 is not empty, it will verify the hash of the downloaded file.
//
// It returns the path where the file was downloaded, and whether the file is
// in the cache (so it shouldn't be removed after use).
func DownloadURLToTemp(url, fileName, wantSHA256 string, useCache bool, verbosity VerbosityLevel) (
	filePath string, cached bool, err error) {
	var downloadedFile *os.File
	var renameTo string
	if useCache {
		filePath, cached, err = GetCachePath(fileName)
		if err != nil {
			return "", false, err
		}
		if !cached {
			renameTo = filePath
			filePath = filePath + ".tmp" // Download to temporary file first.
			downloadedFile, err = os.Create(filePath)
			if err != nil {
				return "", false, errors.Wrapf(err, "failed to create cache file %s", filePath)
			}
		}
	} else {
		downloadedFile, err = os.CreateTemp("", fileName+".*")
		if err != nil {
			return "", false, errors.Wrap(err, "failed to create temporary file")
		}
		filePath = downloadedFile.Name()
	}

	var downloadedBytesStr string
	if !cached {
		var bytesDownloaded int64
		spinnerErr := runSpinner(fmt.Sprintf("Downloading %s…", url), func(titleUpdate chan<- string) {
			var resp *http.Response
			resp, err = http.Get(url)
			if err != nil {
				err = errors.Wrapf(err, "failed to download %s", url)
				return
			}
			defer func() { ReportError(resp.Body.Close()) }()
			if resp.StatusCode != http.StatusOK {
				err = errors.Errorf("failed to download %s: status %s", url, resp.Status)
				return
			}

			// Copy 1MB at a time, updating the title with the bytes downloaded so far.
			buffer := make([]byte, 1024*1024)
			for {
				n, readErr := resp.Body.Read(buffer)
				if n > 0 {
					written, writeErr := downloadedFile.Write(buffer[:n])
					if writeErr != nil {
						err = errors.Wrapf(writeErr, "failed to write to file %s", downloadedFile.Name())
						break
					}
					bytesDownloaded += int64(written)
					titleUpdate <- fmt.Sprintf("Downloading %s (%s) …", url, formatBytes(bytesDownloaded))
				}
				if readErr == io.EOF {
					break
				}
				if readErr != nil {
					err = errors.Wrapf(readErr, "failed to download %s", url)
					break
				}
			}
			if err != nil {
				return
			}
			ReportError(downloadedFile.Close())
		})
		if spinnerErr != nil || err != nil {
			// Don't leave a partially written file behind.
			ReportError(downloadedFile.Close())
			ReportError(os.Remove(filePath))
			if spinnerErr != nil {
				return "", false, errors.Wrapf(spinnerErr, "failed to run spinner for download from %s", url)
			}
			return "", false, err
		}
		downloadedBytesStr = formatBytes(bytesDownloaded)
	}

	// Verify SHA256 hash if provided -- also for cached files.
	verifiedStatus := ""
	if wantSHA256 != "" {
		actualHash, hashErr := sha256OfFile(filePath)
		if hashErr != nil {
			return "", false, hashErr
		}
		if actualHash != wantSHA256 {
			return "", false, errors.Errorf("SHA256 hash mismatch for %s: expected %q, got %q", filePath, wantSHA256, actualHash)
		}
		verifiedStatus = " (hash checked)"
	}

	// If downloaded to a temporary file, rename to the final destination:
	if renameTo != "" {
		_ = os.Remove(renameTo)
		if err := os.Rename(filePath, renameTo); err != nil {
			return "", false, errors.Wrapf(err, "failed to rename %s to %s", filePath, renameTo)
		}
		filePath = renameTo
	}

	if cached {
		switch verbosity {
		case Verbose:
			fmt.Printf("- Reusing %s from cache%s\n", filePath, verifiedStatus)
		case Normal:
			fmt.Printf("\r- Reusing %s from cache%s%s\n", filePath, verifiedStatus, DeleteToEndOfLine)
		case Quiet:
		}
	} else {
		switch verbosity {
		case Verbose:
			fmt.Printf("- Downloaded %s to %s%s\n", downloadedBytesStr, filePath, verifiedStatus)
		case Normal:
			fmt.Printf("\r- Downloaded %s to %s%s%s\n", downloadedBytesStr, filePath, verifiedStatus, DeleteToEndOfLine)
		case Quiet:
		}
		if useCache {
			// Now the file is cached.
			cached = true
		}
	}
	return filePath, cached, nil
}

func sha256OfFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrap(err, "failed to open file for hash verification")
	}
	defer func() { ReportError(f.Close()) }()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.Wrap(err, "failed to read file for hash verification")
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
