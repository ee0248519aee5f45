// Package config externalises the engine's tunables (spec.md §9 Design
// Notes) as an immutable handle passed to operator construction, loaded
// via viper from a YAML file and TRIGO_*-prefixed environment variables.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds the enumerated options from spec.md §9.
type Config struct {
	// UseBinSearchTransitivePath selects the binary-search transitive-path
	// algorithm over the default hash-map BFS (spec.md §4.3).
	UseBinSearchTransitivePath bool

	// WorkerCount is the geo-vocab writer's worker-pool size (spec.md
	// §4.1). Zero means "use hardware concurrency".
	WorkerCount int

	// BlockSize is the target number of triples per permutation block.
	BlockSize int

	// ExternalisationThreshold is the string length above which a
	// vocabulary entry is stored out-of-line (spec.md §3).
	ExternalisationThreshold int

	// QueueCapacity bounds the geo-vocab writer's ingest queue (spec.md
	// §4.1).
	QueueCapacity int

	// CancellationPollInterval is how often long-running operators check
	// their cancellation handle between fragment boundaries (spec.md §5).
	CancellationPollInterval time.Duration

	// TransitivePathBlowupFactor is the multiplier applied to a bound
	// subtree's size estimate when neither side of a transitive path is
	// fixed (spec.md §4.3, exposed as a tunable per the §9 Open Question).
	TransitivePathBlowupFactor int64

	// TransitivePathFixedSizeEstimate is the heuristic size estimate used
	// when either side of a transitive path is fixed.
	TransitivePathFixedSizeEstimate int64
}

// Default returns the engine's default configuration.
func Default() *Config {
	return &Config{
		UseBinSearchTransitivePath:      false,
		WorkerCount:                     runtime.GOMAXPROCS(0),
		BlockSize:                       1 << 20,
		ExternalisationThreshold:        64,
		QueueCapacity:                   1024,
		CancellationPollInterval:        50 * time.Millisecond,
		TransitivePathBlowupFactor:      10000,
		TransitivePathFixedSizeEstimate: 1000,
	}
}

// EffectiveWorkerCount resolves WorkerCount<=0 to hardware concurrency,
// the way spec.md §4.1 describes ("N = hardware concurrency, or
// configured").
func (c *Config) EffectiveWorkerCount() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	return runtime.GOMAXPROCS(0)
}

// Load reads configuration from path (if non-empty), TRIGO_*-prefixed
// environment variables, and falls back to Default() for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := Default()

	v.SetDefault("use_bin_search_transitive_path", def.UseBinSearchTransitivePath)
	v.SetDefault("worker_count", def.WorkerCount)
	v.SetDefault("block_size", def.BlockSize)
	v.SetDefault("externalisation_threshold", def.ExternalisationThreshold)
	v.SetDefault("queue_capacity", def.QueueCapacity)
	v.SetDefault("cancellation_poll_interval", def.CancellationPollInterval.String())
	v.SetDefault("transitive_path_blowup_factor", def.TransitivePathBlowupFactor)
	v.SetDefault("transitive_path_fixed_size_estimate", def.TransitivePathFixedSizeEstimate)

	v.SetEnvPrefix("TRIGO")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	pollInterval, err := time.ParseDuration(v.GetString("cancellation_poll_interval"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid cancellation_poll_interval: %w", err)
	}

	return &Config{
		UseBinSearchTransitivePath:      v.GetBool("use_bin_search_transitive_path"),
		WorkerCount:                     v.GetInt("worker_count"),
		BlockSize:                       v.GetInt("block_size"),
		ExternalisationThreshold:        v.GetInt("externalisation_threshold"),
		QueueCapacity:                   v.GetInt("queue_capacity"),
		CancellationPollInterval:        pollInterval,
		TransitivePathBlowupFactor:      v.GetInt64("transitive_path_blowup_factor"),
		TransitivePathFixedSizeEstimate: v.GetInt64("transitive_path_fixed_size_estimate"),
	}, nil
}
