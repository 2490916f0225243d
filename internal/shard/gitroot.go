package shard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// isGitRoot reports whether path has a .git entry (directory for a normal
// repo, file for a worktree or submodule checkout).
func isGitRoot(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// headSHA reads the commit hash of HEAD for a git root, resolving one level
// of symbolic ref (the common "ref: refs/heads/<branch>" case). Best-effort:
// an unborn branch or detached-but-unreadable HEAD returns an error, which
// callers treat as "leave HeadSHA unset" rather than a fatal condition.
func headSHA(root string) (string, error) {
	gitDir, err := resolveGitDir(root)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}

	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "ref:") {
		return line, nil
	}

	ref := strings.TrimSpace(strings.TrimPrefix(line, "ref:"))
	refContent, err := os.ReadFile(filepath.Join(gitDir, ref))
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", ref, err)
	}
	return strings.TrimSpace(string(refContent)), nil
}

// resolveGitDir handles both a plain ".git" directory and the
// "gitdir: <path>" indirection file used by worktrees and submodules.
func resolveGitDir(root string) (string, error) {
	gitPath := filepath.Join(root, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", fmt.Errorf("stat .git: %w", err)
	}
	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("read .git file: %w", err)
	}
	line := strings.TrimSpace(string(content))
	const prefix = "gitdir:"
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("unrecognized .git file format")
	}
	dir := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir, nil
}
