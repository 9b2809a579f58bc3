// Package utils provides task reference resolution and path handling helpers.
package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveForWrite returns the path to write to, resolving symlinks.
// If path is a symlink, returns the resolved target path.
// If path doesn't exist, returns path unchanged (new file).
func ResolveForWrite(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return filepath.EvalSymlinks(path)
	}
	return path, nil
}

// CanonicalizePath converts a path to its canonical form by:
// 1. Converting to absolute path
// 2. Resolving symlinks
//
// If either step fails, it falls back to the best available form:
// - If symlink resolution fails, returns absolute path
// - If absolute path conversion fails, returns original path
func CanonicalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	canonical, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return absPath
	}
	return canonical
}

// NormalizePathForComparison returns a normalized path suitable for comparison.
// On case-insensitive filesystems (darwin, windows) the path is lowercased.
func NormalizePathForComparison(path string) string {
	if path == "" {
		return ""
	}
	canonical := CanonicalizePath(path)
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		canonical = strings.ToLower(canonical)
	}
	return canonical
}

// PathsEqual compares two paths for equality, handling case-insensitive
// filesystems and symlinks.
func PathsEqual(path1, path2 string) bool {
	return NormalizePathForComparison(path1) == NormalizePathForComparison(path2)
}
