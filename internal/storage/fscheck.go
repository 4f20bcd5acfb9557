package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when a SQLite path sits on a network mount,
// where WAL mode and the database lock file cannot be trusted.
var ErrNetworkFilesystem = errors.New("sqlite database on a network filesystem")

// fsDetector names the filesystem type holding path.
type fsDetector func(path string) (string, error)

func checkLocalFilesystem(path string) error {
	return checkLocalFilesystemWith(path, detectFilesystemType)
}

func checkLocalFilesystemWith(path string, detect fsDetector) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}
	fsType, err := detect(dir)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", dir, err)
	}
	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("%w: %q is on %s; move database.path to local disk or set database.driver to postgres",
			ErrNetworkFilesystem, path, fsType)
	}
	return nil
}

// existingAncestor walks up from path to the first entry that exists, so a
// database that has not been created yet is checked by its directory.
func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		p = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	switch strings.ToLower(strings.TrimSpace(fsType)) {
	case "nfs", "nfs4", "cifs", "smbfs", "smb2", "afpfs", "webdav", "fuse.sshfs":
		return true
	}
	return false
}
