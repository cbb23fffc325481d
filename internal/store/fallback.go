package store

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Options configure the fallback chain.
type Options struct {
	// DataDir is the base directory for disk-backed backends.
	DataDir string
	// Backends is the ordered attempt list. Known names: sqlite, badger,
	// sharded, memory.
	Backends []string
	// MaxShardBytes bounds one shard file of the sharded store.
	MaxShardBytes int64
}

// OpenFirst tries each configured backend in order and returns the first
// that initializes. Failures are logged and the next backend attempted.
// When "memory" is in the list it cannot fail, but it is ephemeral: nothing
// survives process restart.
func OpenFirst(opts Options, logger *zap.Logger) (ContentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backends := opts.Backends
	if len(backends) == 0 {
		backends = []string{"sqlite", "badger", "sharded", "memory"}
	}

	var lastErr error
	for _, name := range backends {
		cs, err := open(name, opts, logger)
		if err != nil {
			logger.Warn("storage backend failed to open, trying next",
				zap.String("backend", name), zap.Error(err))
			lastErr = err
			continue
		}
		if name == "memory" {
			logger.Warn("using in-memory storage; nothing survives restart")
		}
		logger.Info("storage backend ready", zap.String("backend", cs.Name()))
		return cs, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, lastErr)
	}
	return nil, ErrNoBackend
}

func open(name string, opts Options, logger *zap.Logger) (ContentStore, error) {
	switch name {
	case "sqlite":
		return NewSQLiteStore(filepath.Join(opts.DataDir, "tansaku.db"))
	case "badger":
		return NewBadgerStore(filepath.Join(opts.DataDir, "badger"), logger)
	case "sharded":
		return NewShardedFileStore(filepath.Join(opts.DataDir, "shards"), opts.MaxShardBytes, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", name)
	}
}
