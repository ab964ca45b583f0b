package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirUploader writes artifacts below a local directory.
type DirUploader struct {
	Dir string
}

// UploadArtifact writes data to Dir/name and returns the file path.
func (u DirUploader) UploadArtifact(ctx context.Context, name string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	root := strings.TrimSpace(u.Dir)
	if root == "" {
		return "", errors.New("report dir is required")
	}
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if cleaned == "." || filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid artifact path %q", name)
	}

	target := filepath.Join(root, cleaned)
	// #nosec G301 -- report directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	// #nosec G306 -- reports are meant to be shared
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return target, nil
}
