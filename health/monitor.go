package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"

	"github.com/thelittleladyinc/empire-system/job"
	"github.com/thelittleladyinc/empire-system/workflow"
)

const (
	// DefaultInterval is how often the monitor samples.
	DefaultInterval = 30 * time.Second

	// DefaultMemoryThreshold is the used-memory ratio above which a
	// memory_pressure alert is raised.
	DefaultMemoryThreshold = 0.90
)

// MonitorStore is the slice of the store the monitor samples and
// persists alerts through.
type MonitorStore interface {
	Store
	Ping(ctx context.Context) error
	CountWorkflows(ctx context.Context, statuses ...workflow.Status) (int64, error)
	CountJobs(ctx context.Context, statuses ...job.Status) (int64, error)
}

// Pinger reports liveness of the queue transport.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AlertFunc is the callback invoked for every alert the monitor
// raises, after the persistence attempt. This breaks the import cycle:
// the engine wires it to the hook registry.
type AlertFunc func(ctx context.Context, alert *Alert)

// MemSampler returns the used-memory ratio of the host in [0, 1].
type MemSampler func(ctx context.Context) (float64, error)

func defaultMemSampler(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100, nil
}

// Report is the outcome of one sampling pass.
type Report struct {
	Healthy         bool          `json:"healthy"`
	StoreUp         bool          `json:"store_up"`
	StoreLatency    time.Duration `json:"store_latency"`
	QueueUp         bool          `json:"queue_up"`
	MemoryRatio     float64       `json:"memory_ratio"`
	ActiveWorkflows int64         `json:"active_workflows"`
	PendingJobs     int64         `json:"pending_jobs"`
	SampledAt       time.Time     `json:"sampled_at"`
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets how often the monitor samples.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithMemoryThreshold sets the used-memory ratio above which a
// memory_pressure alert is raised.
func WithMemoryThreshold(ratio float64) MonitorOption {
	return func(m *Monitor) { m.memThreshold = ratio }
}

// WithMemSampler replaces the host memory sampler. Tests use this to
// fake memory pressure.
func WithMemSampler(fn MemSampler) MonitorOption {
	return func(m *Monitor) { m.sampleMem = fn }
}

// WithAlertFunc sets the callback invoked for every raised alert.
func WithAlertFunc(fn AlertFunc) MonitorOption {
	return func(m *Monitor) { m.onAlert = fn }
}

// Monitor periodically samples store, queue, and host health, persists
// alerts for anything out of bounds, and keeps the latest Report for
// the API to serve. It is diagnostic only: it reads the same store the
// engine writes but never touches workflow or job state.
type Monitor struct {
	store  MonitorStore
	queue  Pinger
	logger *slog.Logger

	interval     time.Duration
	memThreshold float64
	sampleMem    MemSampler
	onAlert      AlertFunc

	mu   sync.RWMutex
	last *Report

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a Monitor.
func NewMonitor(store MonitorStore, queue Pinger, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		store:        store,
		queue:        queue,
		logger:       logger,
		interval:     DefaultInterval,
		memThreshold: DefaultMemoryThreshold,
		sampleMem:    defaultMemSampler,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sampling goroutine.
func (m *Monitor) Start(_ context.Context) error {
	m.wg.Add(1)
	go m.loop()
	m.logger.Info("health monitor started", slog.Duration("interval", m.interval))
	return nil
}

// Stop signals the monitor to stop and waits for the goroutine to finish.
func (m *Monitor) Stop(_ context.Context) error {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
	return nil
}

// LastReport returns the most recent report, or nil before the first
// sampling pass completes.
func (m *Monitor) LastReport() *Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil
	}
	cp := *m.last
	return &cp
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Sample once immediately at start.
	m.Sample(context.Background())

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Sample(context.Background())
		}
	}
}

// Sample performs one sampling pass. Store, queue, memory, and the
// workload counts are probed in parallel; alerts are raised for
// anything out of bounds, and the resulting report is recorded and
// returned.
func (m *Monitor) Sample(ctx context.Context) *Report {
	report := &Report{SampledAt: time.Now().UTC()}

	var (
		storeErr error
		queueErr error
		memRatio float64
		memErr   error
	)

	// Every probe records its own outcome and returns nil, so one
	// failing probe never cancels the others.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		storeErr = m.store.Ping(gctx)
		report.StoreLatency = time.Since(start)
		return nil
	})

	g.Go(func() error {
		queueErr = m.queue.Ping(gctx)
		return nil
	})

	g.Go(func() error {
		memRatio, memErr = m.sampleMem(gctx)
		return nil
	})

	g.Go(func() error {
		n, err := m.store.CountWorkflows(gctx, workflow.ActiveStatuses...)
		if err != nil {
			m.logger.Debug("count workflows", slog.String("error", err.Error()))
			return nil
		}
		report.ActiveWorkflows = n
		return nil
	})

	g.Go(func() error {
		n, err := m.store.CountJobs(gctx, job.StatusPending)
		if err != nil {
			m.logger.Debug("count jobs", slog.String("error", err.Error()))
			return nil
		}
		report.PendingJobs = n
		return nil
	})

	_ = g.Wait()

	report.StoreUp = storeErr == nil
	report.QueueUp = queueErr == nil
	if memErr != nil {
		m.logger.Warn("memory sample failed", slog.String("error", memErr.Error()))
	} else {
		report.MemoryRatio = memRatio
	}

	memPressure := memErr == nil && memRatio > m.memThreshold
	report.Healthy = report.StoreUp && report.QueueUp && !memPressure

	if storeErr != nil {
		m.raise(ctx, NewAlert(KindStoreUnreachable,
			fmt.Sprintf("store ping failed: %v", storeErr),
			report.StoreLatency.Seconds()))
	}
	if queueErr != nil {
		m.raise(ctx, NewAlert(KindQueueUnreachable,
			fmt.Sprintf("queue ping failed: %v", queueErr), 0))
	}
	if memPressure {
		m.raise(ctx, NewAlert(KindMemoryPressure,
			fmt.Sprintf("memory ratio %.2f above threshold %.2f", memRatio, m.memThreshold),
			memRatio))
	}

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()

	return report
}

// raise persists the alert and notifies the callback. A store that is
// down cannot record its own outage; the callback still fires.
func (m *Monitor) raise(ctx context.Context, alert *Alert) {
	if err := m.store.CreateAlert(ctx, alert); err != nil {
		m.logger.Error("persist alert",
			slog.String("kind", string(alert.Kind)),
			slog.String("error", err.Error()),
		)
	}
	if m.onAlert != nil {
		m.onAlert(ctx, alert)
	}
	m.logger.Warn("health alert",
		slog.String("kind", string(alert.Kind)),
		slog.String("message", alert.Message),
	)
}
