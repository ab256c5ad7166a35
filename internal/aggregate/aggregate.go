// Package aggregate fans out to every configured external service
// concurrently and assembles one dashboard payload, tolerating partial
// failure without aborting the refresh.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"opsdeck/internal/adapter"
	"opsdeck/internal/domain"
)

// Orchestrator issues one call-group per configured service and settles all
// of them. No failure of a single service escapes Aggregate.
type Orchestrator struct {
	Registry *adapter.Registry
	// OuterDeadline is the per-service ceiling, wider than the adapter's
	// own HTTP timeout. On expiry the slow fetch is abandoned and its
	// eventual result discarded.
	OuterDeadline time.Duration
	Log           *slog.Logger
}

func New(reg *adapter.Registry, outerDeadline time.Duration, log *slog.Logger) *Orchestrator {
	if outerDeadline <= 0 {
		outerDeadline = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{Registry: reg, OuterDeadline: outerDeadline, Log: log}
}

// Aggregate returns one result per registered service. Services with no
// config row or an incomplete one short-circuit to an empty skeleton with
// zero network calls; failed or timed-out fetches degrade the same way.
func (o *Orchestrator) Aggregate(ctx context.Context, configs []domain.ServiceConfig) map[string]adapter.Result {
	byService := make(map[string]domain.ServiceConfig, len(configs))
	for _, cfg := range configs {
		byService[cfg.Service] = cfg
	}

	results := make(map[string]adapter.Result)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, service := range o.Registry.Services() {
		a, _ := o.Registry.Lookup(service)
		cfg, configured := byService[service]
		if !configured || !a.ConfigComplete(cfg) {
			mu.Lock()
			results[service] = adapter.Result{}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(service string, a adapter.Adapter, cfg domain.ServiceConfig) {
			defer wg.Done()
			res := o.fetchWithDeadline(ctx, a, cfg)
			mu.Lock()
			results[service] = res
			mu.Unlock()
		}(service, a, cfg)
	}
	wg.Wait()
	return results
}

// fetchWithDeadline wraps one adapter call in the outer deadline and a
// panic guard, guaranteeing isolation structurally rather than relying on
// each adapter's own error handling.
func (o *Orchestrator) fetchWithDeadline(ctx context.Context, a adapter.Adapter, cfg domain.ServiceConfig) adapter.Result {
	callCtx, cancel := context.WithTimeout(ctx, o.OuterDeadline)
	defer cancel()

	done := make(chan adapter.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.Log.Error("adapter panicked", "service", a.Service(), "panic", fmt.Sprint(r))
				res := adapter.Result{Failure: adapter.FailUpstream}
				done <- res
			}
		}()
		done <- a.Fetch(callCtx, cfg)
	}()

	select {
	case res := <-done:
		if res.Failure != "" {
			o.Log.Warn("service degraded", "service", a.Service(), "failure", res.Failure)
		}
		return res
	case <-callCtx.Done():
		// Soft cancellation: the in-flight call sees the context cancel;
		// whatever it eventually writes to the buffered channel is dropped.
		// A canceled caller is not an upstream timeout, keep the logs apart.
		if err := ctx.Err(); err != nil {
			o.Log.Debug("fetch canceled by caller", "service", a.Service(), "cause", err)
			return adapter.Result{Failure: adapter.FailTimeout}
		}
		o.Log.Warn("service timed out", "service", a.Service(), "deadline", o.OuterDeadline)
		return adapter.Result{Failure: adapter.FailTimeout}
	}
}
