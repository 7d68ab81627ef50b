package launch

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

// Config sizes a Pool.
type Config struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueDepth int `yaml:"queue_depth"`
}

// Pool is a bounded set of worker goroutines fed by a fixed-size queue.
// Launch never blocks: when the queue is full the task is dropped.
type Pool struct {
	cfg       Config
	workQueue chan func()
	logger    log.Logger

	mu      sync.RWMutex // guards stopped against Launch racing Shutdown
	stopped bool
	wg      sync.WaitGroup

	size    *atomic.Int32
	dropped *atomic.Int64

	queueLength prometheus.Gauge
	droppedTot  prometheus.Counter
}

// NewPool starts cfg.MaxWorkers workers. Non-positive sizes default to one
// worker and a queue of one slot per worker.
//
// Metrics are registered with reg; a nil reg leaves them unregistered.
func NewPool(cfg Config, reg prometheus.Registerer, logger log.Logger) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.MaxWorkers
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	p := &Pool{
		cfg:       cfg,
		workQueue: make(chan func(), cfg.QueueDepth),
		logger:    logger,
		size:      atomic.NewInt32(0),
		dropped:   atomic.NewInt64(0),
		queueLength: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "lrucache",
			Name:      "launch_queue_length",
			Help:      "Current number of maintenance tasks waiting in the queue.",
		}),
		droppedTot: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "lrucache",
			Name:      "launch_dropped_total",
			Help:      "Maintenance tasks dropped because the queue was full.",
		}),
	}

	p.wg.Add(cfg.MaxWorkers)
	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker()
	}
	level.Debug(logger).Log("msg", "launch pool started", "workers", cfg.MaxWorkers, "queue_depth", cfg.QueueDepth)
	return p
}

// Launch enqueues task. It returns false if the queue is full or the pool
// has been shut down.
func (p *Pool) Launch(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}
	// count before the send so a fast worker never takes the gauge below zero
	p.queueLength.Set(float64(p.size.Inc()))
	select {
	case p.workQueue <- task:
		return true
	default:
		p.queueLength.Set(float64(p.size.Dec()))
		p.dropped.Inc()
		p.droppedTot.Inc()
		return false
	}
}

// Dropped returns the number of tasks rejected because the queue was full.
func (p *Pool) Dropped() int64 { return p.dropped.Load() }

// Shutdown stops accepting tasks, lets the workers drain the queue and waits
// for them to exit. Calling it twice is a no-op.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.workQueue)
	p.mu.Unlock()

	p.wg.Wait()
	level.Debug(p.logger).Log("msg", "launch pool stopped", "dropped", p.dropped.Load())
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.workQueue {
		p.queueLength.Set(float64(p.size.Dec()))
		task()
	}
}
