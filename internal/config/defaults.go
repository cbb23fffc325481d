package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Vault.Extensions == nil {
		cfg.Vault.Extensions = []string{".md", ".txt"}
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/tansaku/data"
	}
	if len(cfg.Storage.Backends) == 0 {
		cfg.Storage.Backends = []string{"sqlite", "badger", "sharded", "memory"}
	}
	if cfg.Storage.MaxShardBytes == 0 {
		cfg.Storage.MaxShardBytes = 4 << 20
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.TypoTolerance == 0 {
		cfg.Search.TypoTolerance = 1
	}
	if cfg.Search.MaxIndexedContent == 0 {
		cfg.Search.MaxIndexedContent = 2000
	}
	if cfg.Search.StreamChunkSize == 0 {
		cfg.Search.StreamChunkSize = 20
	}
	if cfg.Indexing.DebounceMs == 0 {
		cfg.Indexing.DebounceMs = 500
	}
	if cfg.Indexing.MaxFileSize == 0 {
		cfg.Indexing.MaxFileSize = 512 << 10
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 3
	}
	if cfg.Indexing.InterFileDelayMs == 0 {
		cfg.Indexing.InterFileDelayMs = 100
	}
	if cfg.Indexing.InterBatchDelayMs == 0 {
		cfg.Indexing.InterBatchDelayMs = 300
	}
	if cfg.Indexing.SaveEvery == 0 {
		cfg.Indexing.SaveEvery = 50
	}
	if cfg.Indexing.ScanWorkers == 0 {
		cfg.Indexing.ScanWorkers = 8
	}
	if cfg.Usage.RecencyHalfLifeDays == 0 {
		cfg.Usage.RecencyHalfLifeDays = 7
	}
	if cfg.Usage.BounceThresholdMs == 0 {
		cfg.Usage.BounceThresholdMs = 5000
	}
	if cfg.Usage.BounceDecayDays == 0 {
		cfg.Usage.BounceDecayDays = 14
	}
	if cfg.Usage.SaveDebounceMs == 0 {
		cfg.Usage.SaveDebounceMs = 2000
	}
	if cfg.Usage.MaxQueryHistory == 0 {
		cfg.Usage.MaxQueryHistory = 100
	}
	if cfg.Ranking.RelevanceWeight == 0 {
		cfg.Ranking.RelevanceWeight = 0.5
	}
	if cfg.Ranking.RecencyWeight == 0 {
		cfg.Ranking.RecencyWeight = 0.2
	}
	if cfg.Ranking.FrequencyWeight == 0 {
		cfg.Ranking.FrequencyWeight = 0.15
	}
	if cfg.Ranking.LinkImportanceWeight == 0 {
		cfg.Ranking.LinkImportanceWeight = 0.15
	}
	if cfg.Ranking.BouncePenalty == 0 {
		cfg.Ranking.BouncePenalty = 0.3
	}
}
