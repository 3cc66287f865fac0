// Package fileutil provides file system utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a case-insensitive lookup finds no match.
var ErrNotFound = errors.New("file not found")

// FindFileCaseInsensitive searches dir for filename ignoring case.
// ROM packs collected from old archives often mix "PONG.CH8" and "pong.ch8".
//
// Example:
//
//	path, err := FindFileCaseInsensitive("/path/to/roms", "Pong.CH8")
//	// finds "pong.ch8", "PONG.CH8", ...
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	name, ok := matchEntry(entries, filename)
	if !ok {
		return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
	}
	return filepath.Join(dir, name), nil
}

// FindFileCaseInsensitiveFS is FindFileCaseInsensitive over an fs.FS
// (embed.FS, os.DirFS). The returned path uses forward slashes.
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	name, ok := matchEntry(entries, filename)
	if !ok {
		return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
	}
	return path.Join(dir, name), nil
}

func matchEntry(entries []fs.DirEntry, filename string) (string, bool) {
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return entry.Name(), true
		}
	}
	return "", false
}

// HasExt reports whether name ends with one of exts, ignoring case.
// exts include the leading dot (".ch8").
func HasExt(name string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// ListFiles returns the names of the regular files in dir whose extension is
// one of exts, sorted case-insensitively.
func ListFiles(fsys FileSystem, dir string, exts ...string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !HasExt(entry.Name(), exts...) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}

// ReplaceExt returns name with its extension replaced by ext ("pong.ch8", ".txt" -> "pong.txt").
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
