// Package health serves liveness and readiness probes for the marketplace
// API.
//
// Probes are evaluated in the background by Monitor.Run. A probe only flips
// to unhealthy after FailureThreshold consecutive failures and back after
// SuccessThreshold consecutive successes, so a single slow database ping does
// not take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// Default thresholds applied to probes registered without options.
const (
	DefaultFailureThreshold = 3
	DefaultSuccessThreshold = 1
	DefaultTimeout          = 2 * time.Second
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind tells which endpoint a probe contributes to.
type Kind uint8

const (
	Liveness Kind = iota + 1
	Readiness
)

// ProbeOption tunes a probe.
type ProbeOption func(*probe)

// WithTimeout bounds a single probe evaluation.
func WithTimeout(d time.Duration) ProbeOption {
	return func(p *probe) { p.timeout = d }
}

// WithThresholds sets how many consecutive results flip the probe state.
func WithThresholds(failures, successes int) ProbeOption {
	return func(p *probe) {
		p.failureThreshold = max(failures, 1)
		p.successThreshold = max(successes, 1)
	}
}

type probe struct {
	name             string
	kind             Kind
	check            CheckFunc
	timeout          time.Duration
	failureThreshold int
	successThreshold int

	mu        sync.Mutex
	healthy   bool
	lastErr   error
	failures  int
	successes int
}

func (p *probe) evaluate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.check(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.successes = 0
		p.failures++
		if p.failures >= p.failureThreshold {
			p.healthy = false
		}
		return
	}
	p.failures = 0
	p.successes++
	if p.successes >= p.successThreshold {
		p.healthy = true
	}
}

func (p *probe) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.lastErr
}

// Monitor owns the registered probes and the serving flag.
type Monitor struct {
	mu      sync.RWMutex
	probes  []*probe
	serving bool
}

// NewMonitor returns a Monitor that is not serving yet.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Register adds a probe. Probes start healthy and are re-evaluated by Run.
func (m *Monitor) Register(kind Kind, name string, check CheckFunc, opts ...ProbeOption) {
	p := &probe{
		name:             name,
		kind:             kind,
		check:            check,
		timeout:          DefaultTimeout,
		failureThreshold: DefaultFailureThreshold,
		successThreshold: DefaultSuccessThreshold,
		healthy:          true,
	}
	for _, o := range opts {
		o(p)
	}

	m.mu.Lock()
	m.probes = append(m.probes, p)
	m.mu.Unlock()
}

// SetServing marks whether the instance accepts traffic. It is switched on
// after startup and off at the beginning of shutdown.
func (m *Monitor) SetServing(serving bool) {
	m.mu.Lock()
	m.serving = serving
	m.mu.Unlock()
}

// Run evaluates every probe once and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.evaluate(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range m.snapshot() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.evaluate(ctx)
		}()
	}
	wg.Wait()
}

func (m *Monitor) snapshot() []*probe {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.probes)
}

// Report is the evaluated state of one endpoint.
type Report struct {
	Healthy  bool
	Failures map[string]string
}

// Report collects the failing probes of kind. Readiness also fails while the
// instance is not serving.
func (m *Monitor) Report(kind Kind) Report {
	m.mu.RLock()
	serving := m.serving
	m.mu.RUnlock()

	failures := make(map[string]string)
	for _, p := range m.snapshot() {
		if p.kind != kind {
			continue
		}
		healthy, err := p.state()
		if healthy {
			continue
		}
		if err != nil {
			failures[p.name] = err.Error()
		} else {
			failures[p.name] = "unhealthy"
		}
	}
	if kind == Readiness && !serving {
		failures["serving"] = "instance is not serving"
	}
	return Report{Healthy: len(failures) == 0, Failures: failures}
}

// Livez serves the liveness report.
func (m *Monitor) Livez(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, m.Report(Liveness))
}

// Readyz serves the readiness report.
func (m *Monitor) Readyz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, m.Report(Readiness))
}

func writeReport(w http.ResponseWriter, r Report) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) {
			if r.Healthy {
				e.Str("ok")
			} else {
				e.Str("unhealthy")
			}
		})
		if r.Healthy {
			return
		}
		status = http.StatusServiceUnavailable
		names := make([]string, 0, len(r.Failures))
		for name := range r.Failures {
			names = append(names, name)
		}
		slices.Sort(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(r.Failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
