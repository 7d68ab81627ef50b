// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/lrucache/cache"
	"github.com/IvanBrykalov/lrucache/launch"
	pmet "github.com/IvanBrykalov/lrucache/metrics/prom"
)

type benchConfig struct {
	cache cache.Config

	configFile string
	logLevel   string

	workers  int
	duration time.Duration
	readPct  int
	msetPct  int
	batch    int

	keys    int
	zipfS   float64
	zipfV   float64
	seed    int64
	preload int

	pprofAddr   string
	metricsAddr string
}

func (cfg *benchConfig) registerFlags(f *flag.FlagSet) {
	cfg.cache.RegisterFlagsWithPrefix("cache.", f)

	f.StringVar(&cfg.configFile, "config.file", "", "YAML cache config; replaces the -cache.* flags when set")
	f.StringVar(&cfg.logLevel, "log.level", "info", "log level: debug | info | warn | error")

	f.IntVar(&cfg.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	f.DurationVar(&cfg.duration, "duration", 10*time.Second, "benchmark duration")
	f.IntVar(&cfg.readPct, "reads", 80, "read percentage [0..100]")
	f.IntVar(&cfg.msetPct, "batched", 10, "percentage of operations issued as MGet/MSet batches [0..100]")
	f.IntVar(&cfg.batch, "batch", 16, "keys per batched operation")

	f.IntVar(&cfg.keys, "keys", 1_000_000, "keyspace size")
	f.Float64Var(&cfg.zipfS, "zipf_s", 1.1, "Zipf s > 1 (skew)")
	f.Float64Var(&cfg.zipfV, "zipf_v", 1.0, "Zipf v")
	f.Int64Var(&cfg.seed, "seed", time.Now().UnixNano(), "random seed")
	f.IntVar(&cfg.preload, "preload", 0, "preload entries (0 = max-size/2)")

	f.StringVar(&cfg.pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	f.StringVar(&cfg.metricsAddr, "http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
}

type counters struct {
	reads, writes, hits, misses, total atomic.Uint64
}

func main() {
	var cfg benchConfig
	cfg.registerFlags(flag.CommandLine)
	flag.Parse()

	logger := newLogger(cfg.logLevel)

	if cfg.configFile != "" {
		b, err := os.ReadFile(cfg.configFile)
		if err != nil {
			level.Error(logger).Log("msg", "failed to read config file", "file", cfg.configFile, "err", err)
			os.Exit(1)
		}
		if cfg.cache, err = cache.ParseConfig(b); err != nil {
			level.Error(logger).Log("msg", "invalid config file", "file", cfg.configFile, "err", err)
			os.Exit(1)
		}
	}
	if err := run(cfg, logger); err != nil {
		level.Error(logger).Log("msg", "bench failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	return level.NewFilter(logger, opt)
}

func run(cfg benchConfig, logger log.Logger) error {
	opt, err := cache.FromConfig[string, string](cfg.cache)
	if err != nil {
		return err
	}

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.pprofAddr != "" {
		go func() {
			level.Info(logger).Log("msg", "pprof: serving", "addr", cfg.pprofAddr)
			level.Warn(logger).Log("msg", "pprof server stopped", "err", http.ListenAndServe(cfg.pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics on a private registry ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		go func() {
			level.Info(logger).Log("msg", "metrics: serving", "addr", cfg.metricsAddr)
			level.Warn(logger).Log("msg", "metrics server stopped", "err", http.ListenAndServe(cfg.metricsAddr, mux))
		}()
	}

	// ---- Build cache with an instrumented eviction pool ----
	shards := cfg.cache.Shards
	if shards <= 0 {
		shards = runtime.NumCPU()
	}
	pool := launch.NewPool(launch.Config{MaxWorkers: orDefault(cfg.cache.Workers, shards), QueueDepth: orDefault(cfg.cache.QueueDepth, shards)}, reg, logger)
	defer pool.Shutdown()

	opt.Launcher = pool
	opt.Metrics = pmet.New(reg, "lrucache", "bench", nil)
	opt.Logger = logger
	c := cache.New[string, string](opt)
	defer func() { _ = c.Close() }()

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := cfg.preload
	if pl == 0 {
		pl = cfg.cache.MaxSize / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		c.Set(k, "v"+strconv.Itoa(i))
	}

	workers := cfg.workers
	if workers <= 0 {
		workers = 1
	}
	batch := cfg.batch
	if batch <= 0 {
		batch = 1
	}
	keysMax := uint64(max(cfg.keys-1, 1))

	// ---- Load generation ----
	var cnt counters
	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(cfg.seed + int64(id)*9973))
			zipf := rand.NewZipf(r, cfg.zipfS, cfg.zipfV, keysMax)
			key := func() string { return "k:" + strconv.FormatUint(zipf.Uint64(), 10) }

			keys := make([]string, batch)
			kv := make(map[string]string, batch)
			for ctx.Err() == nil {
				read := int(r.Int31n(100)) < cfg.readPct
				batched := int(r.Int31n(100)) < cfg.msetPct

				switch {
				case read && batched:
					for i := range keys {
						keys[i] = key()
					}
					_, missing := c.MGet(keys)
					cnt.reads.Add(uint64(len(keys)))
					cnt.hits.Add(uint64(len(keys) - len(missing)))
					cnt.misses.Add(uint64(len(missing)))
					cnt.total.Add(uint64(len(keys)))
				case read:
					cnt.reads.Inc()
					if _, ok := c.Get(key()); ok {
						cnt.hits.Inc()
					} else {
						cnt.misses.Inc()
					}
					cnt.total.Inc()
				case batched:
					clear(kv)
					for i := 0; i < batch; i++ {
						kv[key()] = "v" + strconv.Itoa(r.Int())
					}
					c.MSet(kv)
					cnt.writes.Add(uint64(len(kv)))
					cnt.total.Add(uint64(len(kv)))
				default:
					c.Set(key(), "v"+strconv.Itoa(r.Int()))
					cnt.writes.Inc()
					cnt.total.Inc()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	report(cfg, workers, elapsed, &cnt, c.Size(), pool.Dropped())
	return nil
}

func report(cfg benchConfig, workers int, elapsed time.Duration, cnt *counters, size int, dropped int64) {
	ops := cnt.total.Load()
	reads := cnt.reads.Load()
	hits := cnt.hits.Load()

	hitRate := 0.0
	if reads > 0 {
		hitRate = float64(hits) / float64(reads) * 100
	}

	fmt.Printf("policy=%s max-size=%d shards=%d timeout=%s workers=%d keys=%d dur=%v seed=%d\n",
		orName(cfg.cache.EvictPolicy), cfg.cache.MaxSize, cfg.cache.Shards, cfg.cache.Timeout, workers, cfg.keys, elapsed, cfg.seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads, cnt.writes.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hits, cnt.misses.Load(), hitRate)
	fmt.Printf("Size()=%d  dropped-passes=%d\n", size, dropped)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orName(p string) string {
	if p == "" {
		return cache.PolicyEvictOne
	}
	return p
}
