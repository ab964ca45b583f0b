package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/storelens/storelens/internal/config"
)

const memoryDSN = ":memory:"

// buildLibsqlDSN prefers the remote URL, then the local path. Bare paths
// become file: DSNs and their directory is created.
func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if remote := strings.TrimSpace(cfg.URL); remote != "" {
		return withAuthToken(remote, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("store path or url is required")
	case path == memoryDSN, strings.HasPrefix(path, "libsql:"):
		return path, nil
	case strings.HasPrefix(path, "file:"):
		local, err := filePathOf(path)
		if err != nil {
			return "", err
		}
		return path, ensureParentDir(local)
	default:
		return "file:" + filepath.Clean(path), ensureParentDir(path)
	}
}

func postgresDSN(cfg config.StoreConfig) (string, error) {
	dsn := strings.TrimSpace(cfg.URL)
	if dsn == "" {
		return "", errors.New("store url is required for postgres")
	}
	return dsn, nil
}

func isLocalDSN(dsn string) bool {
	return dsn == memoryDSN || strings.HasPrefix(dsn, "file:")
}

// withAuthToken adds authToken to a remote URL unless it already has one.
func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn, nil
	}
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// filePathOf returns the filesystem path of a file: DSN, which may be
// written opaque (file:./runs.db) or hierarchical (file:///var/runs.db).
func filePathOf(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	return strings.TrimPrefix(path, "//"), nil
}

func ensureParentDir(path string) error {
	if path == "" || path == memoryDSN {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
