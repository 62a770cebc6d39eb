// Package security reads operator-supplied files such as signing keys and
// catalog overrides.
package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsafePath means the path contains shell metacharacters.
	ErrUnsafePath = errors.New("unsafe file path")

	// ErrFileTooLarge means the file exceeds the caller's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInsecurePermissions means a private file is readable by group or others.
	ErrInsecurePermissions = errors.New("file permissions too open")
)

var forbidden = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r"}

// CleanPath rejects metacharacters, makes path absolute and resolves symlinks.
// A path that does not exist yet is returned cleaned but unresolved.
func CleanPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsafePath)
	}
	for _, c := range forbidden {
		if strings.Contains(path, c) {
			return "", fmt.Errorf("%w: contains %q", ErrUnsafePath, c)
		}
	}

	clean, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(clean)
	if errors.Is(err, os.ErrNotExist) {
		return clean, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return resolved, nil
}

// ReadFile reads at most limit bytes from a cleaned path.
func ReadFile(path string, limit int64) ([]byte, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is validated above
	f, err := os.Open(clean)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, limit)
}

// ReadPrivateFile is ReadFile for key material: on Unix the file must not be
// readable by group or others.
func ReadPrivateFile(path string, limit int64) ([]byte, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is validated above
	f, err := os.Open(clean)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 && os.PathSeparator == '/' {
		return nil, fmt.Errorf("%w: %s has mode %o", ErrInsecurePermissions, clean, info.Mode().Perm())
	}
	return readLimited(f, limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}
