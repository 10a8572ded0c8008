package setup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"
)

const runtimeDownloadTimeout = 30 * time.Minute

// standaloneDirName is the directory under the data root holding the
// downloaded self-contained runtime.
const standaloneDirName = "python-standalone"

// StandaloneRuntime returns the interpreter path inside a previously
// installed standalone runtime. The archive unpacks a single "python"
// top-level directory.
func StandaloneRuntime(dataRoot string) string {
	return filepath.Join(dataRoot, standaloneDirName, "python", "bin", "python3")
}

// systemRuntimeCandidates lists well-known interpreter locations,
// newest version first. Only 3.10 through 3.13 are compatible with
// the ML dependency set.
func systemRuntimeCandidates() []string {
	versions := []string{"3.13", "3.12", "3.11", "3.10"}
	candidates := make([]string, 0, len(versions)*3)
	for _, v := range versions {
		candidates = append(candidates,
			"/opt/homebrew/bin/python"+v,
			"/usr/local/bin/python"+v,
			"python"+v,
		)
	}
	return candidates
}

// ResolveRuntime finds a usable interpreter: the standalone install
// wins, then well-known system locations. Returns "" when none exists.
func ResolveRuntime(dataRoot string, lookPath func(string) (string, error), stat func(string) (os.FileInfo, error)) string {
	standalone := StandaloneRuntime(dataRoot)
	if info, err := stat(standalone); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		return standalone
	}

	for _, candidate := range systemRuntimeCandidates() {
		if filepath.IsAbs(candidate) {
			if info, err := stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
			continue
		}
		if path, err := lookPath(candidate); err == nil {
			return path
		}
	}
	return ""
}

// InstallRuntime downloads, verifies, and unpacks the pinned standalone
// runtime under dataRoot. onProgress receives the download fraction in
// [0,1]. Returns the interpreter path.
func InstallRuntime(ctx context.Context, client *http.Client, dataRoot string, onProgress func(frac float64)) (string, error) {
	archive, err := currentRuntimeArchive()
	if err != nil {
		return "", err
	}

	archivePath := filepath.Join(dataRoot, standaloneDirName+".tar.gz")
	if err := downloadAndVerify(ctx, client, archive.URL, archive.SHA256, archivePath, onProgress); err != nil {
		return "", fmt.Errorf("download runtime: %w", err)
	}
	defer os.Remove(archivePath)

	destDir := filepath.Join(dataRoot, standaloneDirName)
	if err := os.RemoveAll(destDir); err != nil {
		return "", fmt.Errorf("clear runtime directory: %w", err)
	}
	if err := extractTarGz(archivePath, destDir); err != nil {
		return "", fmt.Errorf("unpack runtime: %w", err)
	}

	if goruntime.GOOS == "darwin" {
		// Gatekeeper blocks downloaded binaries until the quarantine
		// attribute is cleared.
		if err := exec.CommandContext(ctx, "xattr", "-dr", "com.apple.quarantine", destDir).Run(); err != nil {
			return "", fmt.Errorf("clear quarantine attribute: %w", err)
		}
	}

	interpreter := StandaloneRuntime(dataRoot)
	info, err := os.Stat(interpreter)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("runtime archive did not contain %s", interpreter)
	}
	return interpreter, nil
}

// downloadAndVerify streams url into destPath, hashing as it copies.
// A digest mismatch removes the partial file and fails hard; a
// tampered or truncated archive must never be left on disk.
func downloadAndVerify(ctx context.Context, client *http.Client, url, wantSHA256, destPath string, onProgress func(frac float64)) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, runtimeDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	hasher := sha256.New()
	body := io.Reader(resp.Body)
	if onProgress != nil && resp.ContentLength > 0 {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	}

	_, copyErr := io.Copy(io.MultiWriter(file, hasher), body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(got, wantSHA256) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("digest mismatch: expected %s, got %s", wantSHA256, got)
	}

	if err := os.Remove(destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	return nil
}

// progressReader reports the consumed fraction of a sized stream.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress func(frac float64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		frac := float64(p.read) / float64(p.total)
		if frac > 1 {
			frac = 1
		}
		p.onProgress(frac)
	}
	return n, err
}

// extractTarGz unpacks archivePath under extractDir, refusing entries
// that would escape it. The runtime archive relies on symlinks for its
// bin directory, so those are preserved.
func extractTarGz(archivePath, extractDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		cleanName := filepath.Clean(header.Name)
		if cleanName == "." || cleanName == "" {
			continue
		}
		targetPath := filepath.Join(extractDir, cleanName)
		if !isWithinBaseDir(extractDir, targetPath) {
			return fmt.Errorf("archive contains invalid path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if !isWithinBaseDir(extractDir, filepath.Join(filepath.Dir(targetPath), header.Linkname)) {
				return fmt.Errorf("archive contains invalid symlink: %s -> %s", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return err
			}
			if err := os.Remove(targetPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.Symlink(header.Linkname, targetPath); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return err
			}
			dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode)&0o777)
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(dst, tr)
			closeErr := dst.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}

// isWithinBaseDir reports whether targetPath stays inside baseDir.
func isWithinBaseDir(baseDir, targetPath string) bool {
	baseClean := filepath.Clean(baseDir)
	targetClean := filepath.Clean(targetPath)
	relative, err := filepath.Rel(baseClean, targetClean)
	if err != nil {
		return false
	}
	return relative == "." || (!strings.HasPrefix(relative, "..") && relative != "")
}
