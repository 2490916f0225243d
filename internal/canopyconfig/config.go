// Package canopyconfig loads and merges per-repo configuration: hardcoded
// defaults, then an on-disk file, then environment variables, in order of
// increasing precedence — the same layering the teacher's own config
// package uses, adapted to Canopy's smaller option set.
package canopyconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete per-repo configuration, matching the options table
// in spec.md §6. The on-disk file is named config.toml in the spec, but this
// port uses YAML (see DESIGN.md): TOML parsing is named as an external
// collaborator concern, while YAML is the teacher's own config format.
type Config struct {
	Core     CoreConfig     `yaml:"core"`
	Indexing IndexingConfig `yaml:"indexing"`
	FTS      FTSConfig      `yaml:"fts"`
	Ignore   IgnoreConfig   `yaml:"ignore"`
}

// CoreConfig configures store-wide behavior.
type CoreConfig struct {
	// TTL is a duration string (Ns|Nm|Nh|Nd) within which a file whose stored
	// mtime still matches is skipped without a fresh read, per spec.md §4.3's
	// fast-skip.
	TTL string `yaml:"ttl"`
	// Encoding names the tokenizer used to estimate token counts.
	Encoding string `yaml:"encoding"`
	// DefaultResultLimit is used when a query doesn't specify Limit.
	DefaultResultLimit int `yaml:"default_result_limit"`
}

// IndexingConfig configures the parsing/chunking pipeline.
type IndexingConfig struct {
	DefaultGlob    string `yaml:"default_glob"`
	ChunkThreshold int    `yaml:"chunk_threshold"`
	ChunkLines     int    `yaml:"chunk_lines"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	PreviewBytes   int    `yaml:"preview_bytes"`
}

// FTSConfig configures the full-text-search index.
type FTSConfig struct {
	Tokenizer string `yaml:"tokenizer"`
}

// IgnoreConfig lists glob patterns excluded from indexing, on top of the
// always-ignored .canopy/ directory.
type IgnoreConfig struct {
	Patterns []string `yaml:"patterns"`
}

// fileName is the on-disk config file's name under <root>/.canopy/.
const fileName = "config.yaml"

// Default returns a Config with spec.md §6's documented defaults.
func Default() Config {
	return Config{
		Core: CoreConfig{
			TTL:                "5m",
			Encoding:           "cl100k_base",
			DefaultResultLimit: 20,
		},
		Indexing: IndexingConfig{
			DefaultGlob:    "**/*",
			ChunkThreshold: 8000,
			ChunkLines:     100,
			ChunkOverlap:   10,
			PreviewBytes:   200,
		},
		FTS: FTSConfig{
			Tokenizer: "porter unicode61",
		},
		Ignore: IgnoreConfig{
			Patterns: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/vendor/**",
				"**/.canopy/**",
				"**/dist/**",
				"**/build/**",
			},
		},
	}
}

// Path returns "<root>/.canopy/config.yaml".
func Path(root string) string {
	return filepath.Join(root, ".canopy", fileName)
}

// Load reads "<root>/.canopy/config.yaml" over Default(), then applies
// CANOPY_* environment overrides. A missing file is not an error — Default()
// alone is returned (with env overrides applied).
func Load(root string) (Config, error) {
	cfg := Default()

	path := Path(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	mergeNonZero(&cfg, &parsed)

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Write writes cfg to "<root>/.canopy/config.yaml", creating the directory
// if needed.
func Write(root string, cfg Config) error {
	dir := filepath.Join(root, ".canopy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(Path(root), data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// mergeNonZero overlays other's non-zero-valued fields onto cfg, leaving
// cfg's (default) values in place wherever other left a field unset.
func mergeNonZero(cfg, other *Config) {
	if other.Core.TTL != "" {
		cfg.Core.TTL = other.Core.TTL
	}
	if other.Core.Encoding != "" {
		cfg.Core.Encoding = other.Core.Encoding
	}
	if other.Core.DefaultResultLimit != 0 {
		cfg.Core.DefaultResultLimit = other.Core.DefaultResultLimit
	}

	if other.Indexing.DefaultGlob != "" {
		cfg.Indexing.DefaultGlob = other.Indexing.DefaultGlob
	}
	if other.Indexing.ChunkThreshold != 0 {
		cfg.Indexing.ChunkThreshold = other.Indexing.ChunkThreshold
	}
	if other.Indexing.ChunkLines != 0 {
		cfg.Indexing.ChunkLines = other.Indexing.ChunkLines
	}
	if other.Indexing.ChunkOverlap != 0 {
		cfg.Indexing.ChunkOverlap = other.Indexing.ChunkOverlap
	}
	if other.Indexing.PreviewBytes != 0 {
		cfg.Indexing.PreviewBytes = other.Indexing.PreviewBytes
	}

	if other.FTS.Tokenizer != "" {
		cfg.FTS.Tokenizer = other.FTS.Tokenizer
	}

	if len(other.Ignore.Patterns) > 0 {
		cfg.Ignore.Patterns = other.Ignore.Patterns
	}
}

// applyEnvOverrides applies the config-level CANOPY_* environment variables:
// CANOPY_CORE_TTL and CANOPY_CORE_DEFAULT_RESULT_LIMIT (ignored when not an
// integer). CANOPY_ROOT and CANOPY_SERVICE_URL are not handled here: the
// caller resolving root and internal/client read those.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CANOPY_CORE_TTL"); v != "" {
		cfg.Core.TTL = v
	}
	if v := os.Getenv("CANOPY_CORE_DEFAULT_RESULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Core.DefaultResultLimit = n
		}
	}
}

// ParseTTL parses a duration string in the Ns|Nm|Nh|Nd form spec.md §6
// documents. time.ParseDuration already handles s/m/h; d (days) is
// layered on top since the standard library has no day unit.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("canopyconfig: empty TTL")
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("canopyconfig: invalid TTL %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("canopyconfig: invalid TTL %q: %w", s, err)
	}
	return d, nil
}
