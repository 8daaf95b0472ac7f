package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/JonMunkholm/profitrecon/internal/metrics"
	"github.com/JonMunkholm/profitrecon/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 10000
)

// Per-order result statuses.
const (
	StatusRecalculated = "recalculated"
	StatusSkipped      = "skipped"
	StatusFailed       = "failed"
)

// Store is the part of the record store the engine uses.
type Store interface {
	Inputs(ctx context.Context, tenant, orderID string) (*store.Inputs, error)
	PutProfit(ctx context.Context, rec core.ProfitRecord) error
	OrderIDs(ctx context.Context, tenant string) ([]string, error)
}

// OrderResult is the outcome for one order.
type OrderResult struct {
	OrderID  string             `json:"orderId"`
	Status   string             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Complete bool               `json:"complete"`
	Record   *core.ProfitRecord `json:"record,omitempty"`
}

// BatchResult reports a multi-order recalculation. Failures of single
// orders are data here, never a returned error.
type BatchResult struct {
	Results      []OrderResult `json:"results"`
	Recalculated int           `json:"recalculated"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Incomplete   int           `json:"incomplete"`
	Cancelled    bool          `json:"cancelled"`
}

func (b *BatchResult) add(r OrderResult) {
	b.Results = append(b.Results, r)
	switch r.Status {
	case StatusRecalculated:
		b.Recalculated++
		if !r.Complete {
			b.Incomplete++
		}
	case StatusSkipped:
		b.Skipped++
	case StatusFailed:
		b.Failed++
	}
}

// Options configures an Engine.
type Options struct {
	Workers   int
	QueueSize int
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type queueState int

const (
	stateIdle queueState = iota
	stateQueued
	stateRunning
	// stateDirty means new work arrived while the order was being
	// recalculated; the worker runs it once more before letting go.
	stateDirty
)

type orderKey struct {
	tenant  string
	orderID string
}

// Engine recomputes ProfitRecords. Work for one order is serialized by a
// keyed mutex shared by the synchronous API, the background queue and
// tenant-wide runs, so a record is always written from a single snapshot.
type Engine struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
	workers int

	locks core.KeyedMutex[orderKey]
	queue chan orderKey

	mu      sync.Mutex
	pending map[orderKey]queueState

	runsMu sync.Mutex
	runs   map[string]*allRun

	baseCtx context.Context
	wg      sync.WaitGroup
	started bool
}

type allRun struct {
	id     string
	cancel context.CancelFunc
}

// New creates an engine. Call Start before Submit.
func New(s Store, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:   s,
		metrics: opts.Metrics,
		now:     opts.Now,
		workers: opts.Workers,
		queue:   make(chan orderKey, opts.QueueSize),
		pending: make(map[orderKey]queueState),
		runs:    make(map[string]*allRun),
		baseCtx: context.Background(),
	}
}

// Start launches the queue workers. They stop when ctx is cancelled; Wait
// blocks until they and any tenant-wide runs have returned.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.baseCtx = ctx
	e.mu.Unlock()

	slog.Info("reconciliation engine started", "workers", e.workers, "queue_size", cap(e.queue))
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.worker(ctx)
		}()
	}
}

// Wait blocks until all background work has stopped.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Recalculate recomputes the given orders now and returns per-order results.
func (e *Engine) Recalculate(ctx context.Context, tenant string, orderIDs []string) (*BatchResult, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	res := &BatchResult{}
	for _, id := range dedupe(orderIDs) {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		res.add(e.recalculate(ctx, tenant, id))
	}
	return res, nil
}

// RecalculateAll recomputes every order of the tenant with bounded
// parallelism. Cancelling ctx stops new orders from being picked up;
// orders already started finish their write.
func (e *Engine) RecalculateAll(ctx context.Context, tenant string) (*BatchResult, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	ids, err := e.store.OrderIDs(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var (
		mu      sync.Mutex
		res     = &BatchResult{}
		g       errgroup.Group
		stopped bool
	)
	g.SetLimit(e.workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		id := id // per-iteration copy (go directive is 1.21)
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				res.Cancelled = true
				mu.Unlock()
				return nil
			}
			r := e.recalculate(ctx, tenant, id)
			mu.Lock()
			res.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if stopped {
		res.Cancelled = true
	}

	sort.Slice(res.Results, func(i, j int) bool { return res.Results[i].OrderID < res.Results[j].OrderID })
	return res, nil
}

// StartRecalculateAll runs RecalculateAll in the background and returns its
// run id. A run already in progress for the tenant is cancelled first.
func (e *Engine) StartRecalculateAll(tenant string) (string, error) {
	if tenant == "" {
		return "", core.ErrTenantRequired
	}
	e.mu.Lock()
	base := e.baseCtx
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(base)
	run := &allRun{id: uuid.NewString(), cancel: cancel}

	e.runsMu.Lock()
	if prev, ok := e.runs[tenant]; ok {
		slog.Info("cancelling previous recalculation", "tenant", tenant, "run_id", prev.id)
		prev.cancel()
	}
	e.runs[tenant] = run
	e.runsMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		start := time.Now()
		res, err := e.RecalculateAll(ctx, tenant)

		e.runsMu.Lock()
		if e.runs[tenant] == run {
			delete(e.runs, tenant)
		}
		e.runsMu.Unlock()

		if err != nil {
			slog.Error("tenant recalculation failed", "tenant", tenant, "run_id", run.id, "error", err)
			return
		}
		slog.Info("tenant recalculation finished",
			"tenant", tenant,
			"run_id", run.id,
			"recalculated", res.Recalculated,
			"incomplete", res.Incomplete,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"cancelled", res.Cancelled,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()
	return run.id, nil
}

// Submit queues orders for background recalculation. An order already
// queued is not queued twice; an order being recalculated is run once more
// afterwards so the newest inputs win. ErrQueueFull is returned when some
// orders could not be queued.
func (e *Engine) Submit(tenant string, orderIDs []string) error {
	if tenant == "" {
		return core.ErrTenantRequired
	}
	var coalesced, dropped int

	e.mu.Lock()
	for _, id := range dedupe(orderIDs) {
		k := orderKey{tenant, id}
		switch e.pending[k] {
		case stateQueued, stateDirty:
			coalesced++
			continue
		case stateRunning:
			e.pending[k] = stateDirty
			coalesced++
			continue
		}
		select {
		case e.queue <- k:
			e.pending[k] = stateQueued
		default:
			dropped++
		}
	}
	depth := len(e.queue)
	e.mu.Unlock()

	e.metrics.AddCoalesced(coalesced)
	e.metrics.AddDropped(dropped)
	e.metrics.SetQueueDepth(depth)

	if dropped > 0 {
		return fmt.Errorf("%w: %d orders not queued", core.ErrQueueFull, dropped)
	}
	return nil
}

// Pending returns how many orders are queued or running.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case k := <-e.queue:
			e.process(ctx, k)
		}
	}
}

func (e *Engine) process(ctx context.Context, k orderKey) {
	e.mu.Lock()
	e.pending[k] = stateRunning
	e.metrics.SetQueueDepth(len(e.queue))
	e.mu.Unlock()

	for {
		r := e.recalculate(ctx, k.tenant, k.orderID)
		if r.Status == StatusFailed {
			slog.Warn("background recalculation failed", "tenant", k.tenant, "order_id", k.orderID, "error", r.Error)
		}

		e.mu.Lock()
		if e.pending[k] == stateDirty && ctx.Err() == nil {
			e.pending[k] = stateRunning
			e.mu.Unlock()
			continue
		}
		delete(e.pending, k)
		e.mu.Unlock()
		return
	}
}

// recalculate is the single read-compute-write path for one order.
func (e *Engine) recalculate(ctx context.Context, tenant, orderID string) OrderResult {
	unlock := e.locks.Lock(orderKey{tenant, orderID})
	defer unlock()

	start := time.Now()
	res := OrderResult{OrderID: orderID}

	in, err := e.store.Inputs(ctx, tenant, orderID)
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		res.Status = StatusSkipped
		res.Error = err.Error()
		e.metrics.ObserveRecalc(metrics.RecalcSkipped, time.Since(start))
		return res
	case err != nil:
		res.Status, res.Error = StatusFailed, err.Error()
		e.metrics.ObserveRecalc(metrics.RecalcFailed, time.Since(start))
		return res
	}

	rec := Compute(in, e.now())
	rec.TenantID = tenant

	// Once inputs are read the write goes through even if the caller gives
	// up, so a started recalculation never leaves the old record half-way.
	err = e.store.PutProfit(context.WithoutCancel(ctx), rec)
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		res.Status, res.Error = StatusSkipped, err.Error()
		e.metrics.ObserveRecalc(metrics.RecalcSkipped, time.Since(start))
	case err != nil:
		res.Status, res.Error = StatusFailed, err.Error()
		e.metrics.ObserveRecalc(metrics.RecalcFailed, time.Since(start))
	default:
		res.Status = StatusRecalculated
		res.Complete = rec.Complete
		res.Record = &rec
		e.metrics.ObserveRecalc(metrics.RecalcOK, time.Since(start))
	}
	return res
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
