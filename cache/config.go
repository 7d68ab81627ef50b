package cache

import (
	"bytes"
	"flag"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/lrucache/policy"
	"github.com/IvanBrykalov/lrucache/policy/batch"
	"github.com/IvanBrykalov/lrucache/policy/single"
)

// Eviction policy names accepted by Config.EvictPolicy.
const (
	PolicyEvictOne   = "one"
	PolicyEvictBatch = "batch"
)

// Config is the serializable form of the non-generic Options fields.
type Config struct {
	MaxSize     int           `yaml:"max_size"`
	Timeout     time.Duration `yaml:"timeout"`
	Shards      int           `yaml:"shards"`
	EvictPolicy string        `yaml:"evict_policy"`
	EvictBatch  int           `yaml:"evict_batch"`
	Workers     int           `yaml:"workers"`
	QueueDepth  int           `yaml:"queue_depth"`
}

// RegisterFlagsWithPrefix adds the flags required to config this to the given FlagSet.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MaxSize, prefix+"max-size", 100_000, "Maximum number of entries across all shards.")
	f.DurationVar(&cfg.Timeout, prefix+"timeout", 0, "Entry TTL measured from the last write, in whole seconds. 0 disables expiry.")
	f.IntVar(&cfg.Shards, prefix+"shards", 0, "Number of shards. 0 uses one shard per CPU.")
	f.StringVar(&cfg.EvictPolicy, prefix+"evict-policy", PolicyEvictOne, "Eviction policy: one | batch.")
	f.IntVar(&cfg.EvictBatch, prefix+"evict-batch", policy.MaxEvictBatch, "Maximum removals per pass for the batch policy.")
	f.IntVar(&cfg.Workers, prefix+"workers", 0, "Background eviction workers. 0 uses one per shard.")
	f.IntVar(&cfg.QueueDepth, prefix+"queue-depth", 0, "Background eviction queue depth. 0 uses one slot per shard.")
}

// Validate checks the config for invalid values.
func (cfg *Config) Validate() error {
	if cfg.MaxSize < 0 {
		return errors.Errorf("max_size must be >= 0, got %d", cfg.MaxSize)
	}
	if cfg.Timeout < 0 {
		return errors.Errorf("timeout must be >= 0, got %s", cfg.Timeout)
	}
	if cfg.Shards < 0 {
		return errors.Errorf("shards must be >= 0, got %d", cfg.Shards)
	}
	if cfg.Workers < 0 || cfg.QueueDepth < 0 {
		return errors.New("workers and queue_depth must be >= 0")
	}
	if _, err := cfg.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy returns the eviction policy named by EvictPolicy. An empty name
// selects evict-one.
func (cfg *Config) Policy() (policy.Policy, error) {
	switch cfg.EvictPolicy {
	case "", PolicyEvictOne:
		return single.New(), nil
	case PolicyEvictBatch:
		if cfg.EvictBatch < 0 || cfg.EvictBatch > policy.MaxEvictBatch {
			return nil, errors.Errorf("evict_batch must be in [0, %d], got %d", policy.MaxEvictBatch, cfg.EvictBatch)
		}
		return batch.New(cfg.EvictBatch), nil
	default:
		return nil, errors.Errorf("unknown evict_policy %q (use %s or %s)", cfg.EvictPolicy, PolicyEvictOne, PolicyEvictBatch)
	}
}

// ParseConfig decodes a YAML document into a Config. Unknown fields are
// rejected. The result is validated.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse cache config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid cache config")
	}
	return cfg, nil
}

// FromConfig builds Options from a validated Config. Collaborators that a
// Config cannot express (Loader, Metrics, Logger, Clock, Hasher, Launcher)
// are left nil for the caller to set.
func FromConfig[K comparable, V any](cfg Config) (Options[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return Options[K, V]{}, err
	}
	pol, err := cfg.Policy()
	if err != nil {
		return Options[K, V]{}, err
	}
	return Options[K, V]{
		MaxSize:    cfg.MaxSize,
		Timeout:    cfg.Timeout,
		Shards:     cfg.Shards,
		Policy:     pol,
		Workers:    cfg.Workers,
		QueueDepth: cfg.QueueDepth,
	}, nil
}
