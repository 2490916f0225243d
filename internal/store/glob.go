package store

import "github.com/bmatcuk/doublestar/v4"

// matchGlob reports whether path matches pattern, where pattern follows
// doublestar's "**" recursive-match syntax. An empty or "*" pattern matches
// everything.
func matchGlob(pattern, path string) (bool, error) {
	if pattern == "" || pattern == "*" {
		return true, nil
	}
	return doublestar.Match(pattern, path)
}
