// Package health probes the services the API depends on and folds the results
// into a single report.
package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"genesis/internal/infra"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// DefaultProbeTimeout bounds a single probe when the aggregator has no
// explicit timeout.
const DefaultProbeTimeout = 5 * time.Second

// Result is the outcome of one probe. A nil Err means healthy.
type Result struct {
	Err error
}

func Healthy() Result { return Result{} }

func Unhealthy(err error) Result { return Result{Err: err} }

// Prober checks one dependency.
type Prober interface {
	Probe(ctx context.Context) Result
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) Result

func (f ProberFunc) Probe(ctx context.Context) Result { return f(ctx) }

// PingProber reports healthy when Ping returns nil. The job stores satisfy it.
type PingProber struct {
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func (p PingProber) Probe(ctx context.Context) Result {
	if err := p.Pinger.Ping(ctx); err != nil {
		return Unhealthy(err)
	}
	return Healthy()
}

// HTTPProber issues a GET and treats any 2xx response as healthy.
type HTTPProber struct {
	URL        string
	HTTPClient *http.Client
}

func (p HTTPProber) Probe(ctx context.Context) Result {
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Unhealthy(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Unhealthy(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Unhealthy(fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	return Healthy()
}

// ServiceHealth is the per-service entry of a Report.
type ServiceHealth struct {
	Status       string    `json:"status"`
	ResponseTime float64   `json:"response_time"`
	LastCheck    time.Time `json:"last_check"`
	Error        *string   `json:"error"`
}

// System describes the process itself.
type System struct {
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	ActiveJobs  int64   `json:"active_jobs"`
	QueuedJobs  int64   `json:"queued_jobs"`
}

// Report is the aggregated health view.
type Report struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    float64                  `json:"uptime"`
	Services  map[string]ServiceHealth `json:"services"`
	System    System                   `json:"system"`
}

// Load reports the in-flight and queued job counts.
type Load interface {
	Active() int64
	Queued() int64
}

// Options configures an Aggregator.
type Options struct {
	Version string
	Timeout time.Duration
	Load    Load
	Logger  *infra.Logger
}

// Aggregator runs every registered probe on each Check.
type Aggregator struct {
	mu      sync.RWMutex
	probers map[string]Prober
	order   []string

	version string
	timeout time.Duration
	load    Load
	started time.Time
	now     func() time.Time
	logger  *infra.Logger
}

func NewAggregator(opts Options) *Aggregator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Aggregator{
		probers: make(map[string]Prober),
		version: version,
		timeout: timeout,
		load:    opts.Load,
		started: time.Now(),
		now:     time.Now,
		logger:  logger,
	}
}

// Register adds or replaces the probe for name.
func (a *Aggregator) Register(name string, p Prober) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.probers[name]; !ok {
		a.order = append(a.order, name)
	}
	a.probers[name] = p
}

// Check probes every service concurrently. It never fails: probe errors,
// timeouts and panics are recorded against the service that caused them.
func (a *Aggregator) Check(ctx context.Context) Report {
	a.mu.RLock()
	names := append([]string(nil), a.order...)
	probers := make([]Prober, len(names))
	for i, name := range names {
		probers[i] = a.probers[name]
	}
	a.mu.RUnlock()

	results := make([]ServiceHealth, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.probe(ctx, names[i], probers[i])
		}(i)
	}
	wg.Wait()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: a.now().UTC(),
		Version:   a.version,
		Uptime:    time.Since(a.started).Seconds(),
		Services:  make(map[string]ServiceHealth, len(names)),
		System:    a.system(),
	}
	for i, name := range names {
		report.Services[name] = results[i]
		if results[i].Status != StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (a *Aggregator) probe(ctx context.Context, name string, p Prober) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Unhealthy(fmt.Errorf("probe panicked: %v", rec))
			}
		}()
		done <- p.Probe(ctx)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Unhealthy(fmt.Errorf("probe timed out after %s", a.timeout))
	}

	out := ServiceHealth{
		Status:       StatusHealthy,
		ResponseTime: time.Since(start).Seconds(),
		LastCheck:    a.now().UTC(),
	}
	if res.Err != nil {
		msg := res.Err.Error()
		out.Status = StatusUnhealthy
		out.Error = &msg
		a.logger.Warn().Err(res.Err).Str("service", name).Msg("health probe failed")
	}
	return out
}

func (a *Aggregator) system() System {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	sys := System{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(mem.HeapAlloc) / (1024 * 1024),
	}
	if a.load != nil {
		sys.ActiveJobs = a.load.Active()
		sys.QueuedJobs = a.load.Queued()
	}
	return sys
}
