// Package fileops implements the local file plumbing for the archive
// pipeline: HTTP download, streaming MD5, and zip extraction with
// traversal defense.
package fileops

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EventMosaicProject/em-collector/internal/logger"
)

// copyBufferSize bounds memory use for downloads, hashing, and
// extraction regardless of file size.
const copyBufferSize = 8 * 1024

// ErrZipTraversal is returned when an archive entry resolves outside
// the extraction directory (Zip Slip).
var ErrZipTraversal = errors.New("zip entry escapes extraction directory")

// FileOps performs download, hashing, and extraction. All methods are
// re-entrant; the struct carries no per-call state.
type FileOps struct {
	client *http.Client
	log    logger.Logger
}

// New creates a FileOps with a shared HTTP client.
func New(connectTimeout, readTimeout time.Duration, log logger.Logger) *FileOps {
	return &FileOps{
		client: NewHTTPClient(connectTimeout, readTimeout),
		log:    log,
	}
}

// NewHTTPClient builds an HTTP client with a separate dial timeout and
// an overall per-request timeout covering the body read.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: readTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
		},
	}
}

// Download fetches url into targetPath, creating parent directories as
// needed and truncating any existing file. The copy is streamed with a
// bounded buffer.
func (f *FileOps) Download(ctx context.Context, url, targetPath string) (string, error) {
	f.log.Debug("downloading file",
		logger.String("url", url),
		logger.String("target", targetPath))

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return "", fmt.Errorf("create target directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	out, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", targetPath, err)
	}
	defer out.Close()

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(out, resp.Body, buf); err != nil {
		return "", fmt.Errorf("write %s: %w", targetPath, err)
	}

	f.log.Debug("download complete", logger.String("target", targetPath))
	return targetPath, nil
}

// MD5 computes the streaming MD5 digest of the file at path and
// returns it as lowercase hex.
func (f *FileOps) MD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	h := md5.New()
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExtractZip unpacks the archive at zipPath into targetDir and returns
// the absolute paths of the written files, in archive order. Directory
// entries create directories and are not returned. Any entry resolving
// outside targetDir fails the whole extraction with ErrZipTraversal.
func (f *FileOps) ExtractZip(zipPath, targetDir string) ([]string, error) {
	f.log.Debug("extracting archive",
		logger.String("zip", zipPath),
		logger.String("target", targetDir))

	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("resolve target dir %s: %w", targetDir, err)
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer reader.Close()

	var extracted []string
	for _, entry := range reader.File {
		resolved, err := resolveEntryPath(absTarget, entry.Name)
		if err != nil {
			return nil, err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(resolved, 0o755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", resolved, err)
			}
			continue
		}

		if err := extractEntry(entry, resolved); err != nil {
			return nil, err
		}
		extracted = append(extracted, resolved)
	}

	f.log.Debug("extraction complete",
		logger.String("zip", zipPath),
		logger.Int("files", len(extracted)))
	return extracted, nil
}

// EnsureDir creates the directory (and parents) if missing. A path
// that exists as a non-directory is an error.
func (f *FileOps) EnsureDir(path string) (string, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir():
		return "", fmt.Errorf("path %s exists and is not a directory", path)
	case err == nil:
		return path, nil
	case !os.IsNotExist(err):
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", path, err)
	}
	return path, nil
}

// resolveEntryPath joins the entry name onto the extraction root and
// rejects any result that escapes it.
func resolveEntryPath(absTarget, entryName string) (string, error) {
	resolved := filepath.Clean(filepath.Join(absTarget, entryName))
	if resolved != absTarget && !strings.HasPrefix(resolved, absTarget+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q: %w", entryName, ErrZipTraversal)
	}
	return resolved, nil
}

func extractEntry(entry *zip.File, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", targetPath, err)
	}

	in, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", targetPath, err)
	}
	defer out.Close()

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return nil
}
