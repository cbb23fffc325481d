// Package config provides configuration loading and structs for the tansaku core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the search core and the demo host.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Vault    VaultConfig    `yaml:"vault"`
	Storage  StorageConfig  `yaml:"storage"`
	Search   SearchConfig   `yaml:"search"`
	Indexing IndexingConfig `yaml:"indexing"`
	Usage    UsageConfig    `yaml:"usage"`
	Ranking  RankingConfig  `yaml:"ranking"`
}

// VaultConfig holds the host-side vault settings.
type VaultConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
}

// StorageConfig holds paths and ordering for the persistence fallback chain.
type StorageConfig struct {
	// DataDir is the base directory for all persisted state.
	DataDir string `yaml:"data_dir"`
	// Backends is the ordered attempt list; first to open wins.
	// Known values: sqlite, badger, sharded, memory.
	Backends []string `yaml:"backends"`
	// MaxShardBytes bounds one shard file of the sharded flat store.
	MaxShardBytes int64 `yaml:"max_shard_bytes"`
}

// SearchConfig holds query-side options. TypoTolerance, FoldAccents,
// EnableStemming and Synonyms are matching-relevant: changing any of them
// makes previously indexed terms incomparable to query terms, so the service
// rebuilds the index when they change.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// TypoTolerance is the max edit distance for fuzzy term matching; 0 disables.
	TypoTolerance  int  `yaml:"typo_tolerance"`
	FoldAccents    bool `yaml:"fold_accents"`
	EnableStemming bool `yaml:"enable_stemming"`
	// Synonyms are "base=variant1,variant2" entries expanded bidirectionally
	// at query time.
	Synonyms []string `yaml:"synonyms"`
	// MaxIndexedContent truncates stored document content; the TFI still
	// sees the full text.
	MaxIndexedContent int `yaml:"max_indexed_content"`
	// StreamChunkSize is how many scored hits accumulate between
	// SearchStream emissions.
	StreamChunkSize int `yaml:"stream_chunk_size"`
}

// IndexingConfig holds coordinator scheduling knobs.
type IndexingConfig struct {
	DebounceMs        int   `yaml:"debounce_ms"`
	MaxFileSize       int64 `yaml:"max_file_size"`
	BatchSize         int   `yaml:"batch_size"`
	InterFileDelayMs  int   `yaml:"inter_file_delay_ms"`
	InterBatchDelayMs int   `yaml:"inter_batch_delay_ms"`
	// SaveEvery persists the snapshot after this many processed documents
	// during bulk indexing, so an interrupted build stays mostly current.
	SaveEvery int `yaml:"save_every"`
	// ScanWorkers bounds the concurrent needs-indexing checks.
	ScanWorkers int `yaml:"scan_workers"`
}

// UsageConfig holds usage-tracker tuning.
type UsageConfig struct {
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`
	BounceThresholdMs   int64   `yaml:"bounce_threshold_ms"`
	BounceDecayDays     float64 `yaml:"bounce_decay_days"`
	SaveDebounceMs      int     `yaml:"save_debounce_ms"`
	MaxQueryHistory     int     `yaml:"max_query_history"`
}

// RankingConfig holds the combined-score weights. Inputs are assumed
// pre-normalized to [0,1].
type RankingConfig struct {
	RelevanceWeight      float64 `yaml:"relevance_weight"`
	RecencyWeight        float64 `yaml:"recency_weight"`
	FrequencyWeight      float64 `yaml:"frequency_weight"`
	LinkImportanceWeight float64 `yaml:"link_importance_weight"`
	// BouncePenalty scales the multiplicative pogo-sticking penalty.
	BouncePenalty float64 `yaml:"bounce_penalty"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Vault.Root = expandPath(cfg.Vault.Root, configDir)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// MatchingRelevant reports whether the two search configs differ in a way
// that invalidates indexed terms (typo tolerance, accent folding, stemming,
// or the normalized synonym set).
func MatchingRelevant(a, b *SearchConfig) bool {
	if a.TypoTolerance != b.TypoTolerance ||
		a.FoldAccents != b.FoldAccents ||
		a.EnableStemming != b.EnableStemming {
		return true
	}
	return normalizeSynonyms(a.Synonyms) != normalizeSynonyms(b.Synonyms)
}

func normalizeSynonyms(entries []string) string {
	cleaned := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			cleaned = append(cleaned, e)
		}
	}
	sort.Strings(cleaned)
	return strings.Join(cleaned, ";")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
