package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// discoveryBackend names the mechanism used to enumerate candidate files.
type discoveryBackend string

const (
	backendRipgrep discoveryBackend = "rg"
	backendGit     discoveryBackend = "git"
	backendFd      discoveryBackend = "fd"
	backendWalk    discoveryBackend = "walk"
)

var (
	backendOnce   sync.Once
	chosenBackend discoveryBackend
)

// resolveBackend picks the fastest available external file walker, falling
// back to the in-process doublestar walker. The choice is made once and
// cached for the process lifetime — external tool availability doesn't
// change mid-run.
func resolveBackend() discoveryBackend {
	backendOnce.Do(func() {
		for _, b := range []discoveryBackend{backendRipgrep, backendGit, backendFd} {
			if _, err := exec.LookPath(string(b)); err == nil {
				chosenBackend = b
				return
			}
		}
		chosenBackend = backendWalk
	})
	return chosenBackend
}

// Discover resolves glob against the repo root, honoring version-control
// ignore rules, and returns matching file paths relative to root.
func Discover(ctx context.Context, root, glob string) ([]string, error) {
	switch resolveBackend() {
	case backendRipgrep:
		paths, err := discoverRipgrep(ctx, root)
		if err == nil {
			return filterGlob(paths, glob), nil
		}
	case backendGit:
		paths, err := discoverGit(ctx, root)
		if err == nil {
			return filterGlob(paths, glob), nil
		}
	case backendFd:
		paths, err := discoverFd(ctx, root)
		if err == nil {
			return filterGlob(paths, glob), nil
		}
	}
	return discoverWalk(root, glob)
}

func discoverRipgrep(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "rg", "--files", "--hidden", "--follow")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("rg --files: %w", err)
	}
	return splitLines(out), nil
}

func discoverGit(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}
	return splitLines(out), nil
}

func discoverFd(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "fd", "--type", "f", "--hidden")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("fd --type f: %w", err)
	}
	return splitLines(out), nil
}

// discoverWalk is the in-process fallback: a plain filesystem walk with
// doublestar glob matching and .git and node_modules pruning. It has weaker ignore-rule
// semantics than the external tools (no .gitignore parsing) but the same
// glob contract.
func discoverWalk(root, glob string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort discovery, skip unreadable entries
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		ok, matchErr := matchesGlob(rel, glob)
		if matchErr != nil {
			return matchErr
		}
		if ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func matchesGlob(path, glob string) (bool, error) {
	if glob == "" || glob == "*" {
		return true, nil
	}
	return doublestar.Match(glob, path)
}

func filterGlob(paths []string, glob string) []string {
	if glob == "" || glob == "*" {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if ok, err := matchesGlob(filepath.ToSlash(p), glob); err == nil && ok {
			out = append(out, p)
		}
	}
	return out
}

func splitLines(out []byte) []string {
	lines := strings.Split(strings.TrimRight(string(bytes.TrimSpace(out)), "\n"), "\n")
	result := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return result
}
