// Package importer runs the two-phase upload: Preview parses and stages a
// file, Commit persists the valid rows of a staged session exactly once and
// hands the affected orders to the reconciliation engine.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/JonMunkholm/profitrecon/internal/logging"
	"github.com/JonMunkholm/profitrecon/internal/metrics"
	"github.com/JonMunkholm/profitrecon/internal/parser"
	"github.com/JonMunkholm/profitrecon/internal/staging"
	"github.com/JonMunkholm/profitrecon/internal/store"
	"github.com/google/uuid"
)

// Submitter receives orders that need their profit recomputed.
type Submitter interface {
	Submit(tenant string, orderIDs []string) error
}

// PreviewResult is the full accounting of what a commit would do.
type PreviewResult struct {
	SessionToken string          `json:"sessionToken"`
	Kind         core.Kind       `json:"kind"`
	FileName     string          `json:"fileName"`
	TotalRows    int             `json:"totalRows"`
	ValidRows    int             `json:"validRows"`
	InvalidCount int             `json:"invalidCount"`
	InvalidRows  []core.RowError `json:"invalidRows"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

// CommitResult reports a commit. SkippedCount covers every row that was
// not written: invalid rows plus identifiers that already existed, so
// InsertedCount + SkippedCount equals the file's row count.
type CommitResult struct {
	ImportID         string    `json:"importId"`
	Kind             core.Kind `json:"kind"`
	InsertedCount    int       `json:"insertedCount"`
	SkippedCount     int       `json:"skippedCount"`
	DuplicateCount   int       `json:"duplicateCount"`
	Duplicates       []string  `json:"duplicates,omitempty"`
	AffectedOrderIDs []string  `json:"affectedOrders"`
}

// Service wires parser, staging, record store and engine together.
type Service struct {
	parser  *parser.Parser
	staging staging.Store
	store   store.Store
	engine  Submitter
	limiter *Limiter
	metrics *metrics.Metrics

	// commits serializes commits per (tenant, kind) in this process. The
	// Postgres store adds an advisory lock for other instances.
	commits core.KeyedMutex[commitKey]
}

type commitKey struct {
	tenant string
	kind   core.Kind
}

// Config carries the collaborators of a Service.
type Config struct {
	Parser  *parser.Parser
	Staging staging.Store
	Store   store.Store
	Engine  Submitter
	Limiter *Limiter
	Metrics *metrics.Metrics
}

func NewService(cfg Config) *Service {
	if cfg.Parser == nil {
		cfg.Parser = parser.New(parser.Options{})
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(DefaultMaxConcurrent, DefaultMaxWait)
	}
	return &Service{
		parser:  cfg.Parser,
		staging: cfg.Staging,
		store:   cfg.Store,
		engine:  cfg.Engine,
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
	}
}

// Limiter exposes the parse limiter for shutdown and health output.
func (s *Service) Limiter() *Limiter { return s.limiter }

// Preview parses r and stages the outcome. Nothing reaches the record
// store until Commit.
func (s *Service) Preview(ctx context.Context, tenant string, kind core.Kind, fileName string, r io.Reader) (*PreviewResult, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	log := logging.WithFields(ctx, "kind", kind, "file", fileName)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.parser.Parse(ctx, kind, fileName, r)
	s.limiter.Release()
	if err != nil {
		log.Warn("file rejected", "error", err)
		return nil, err
	}
	s.metrics.ObserveParse(string(kind), res.ValidCount(), res.InvalidCount())

	sess, err := s.staging.Stage(ctx, tenant, kind, fileName, res.Rows)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	log.Info("upload staged",
		"session", sess.Token,
		"format", res.Format,
		"rows", res.Total(),
		"valid", res.ValidCount(),
		"invalid", res.InvalidCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	invalid := res.Errors()
	if invalid == nil {
		invalid = []core.RowError{}
	}
	return &PreviewResult{
		SessionToken: sess.Token,
		Kind:         kind,
		FileName:     fileName,
		TotalRows:    res.Total(),
		ValidRows:    res.ValidCount(),
		InvalidCount: res.InvalidCount(),
		InvalidRows:  invalid,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

// Commit persists the valid rows of a staged session. A session is consumed
// by the first successful commit; later attempts get ErrSessionNotFound.
// A failed write releases the session so it can be retried before expiry.
func (s *Service) Commit(ctx context.Context, tenant string, kind core.Kind, token string) (*CommitResult, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	sess, err := s.staging.Claim(ctx, tenant, token)
	if err != nil {
		return nil, err
	}
	if sess.Kind != kind {
		s.release(ctx, token)
		return nil, fmt.Errorf("%w: session holds %s, not %s", core.ErrSessionKindMismatch, sess.Kind, kind)
	}

	res, err := s.persist(ctx, sess)
	if err != nil {
		s.release(ctx, token)
		return nil, err
	}

	if err := s.staging.Complete(context.WithoutCancel(ctx), token); err != nil {
		logging.FromContext(ctx).Warn("could not remove committed session", "session", token, "error", err)
	}
	return res, nil
}

// ImportDirect parses, stages and commits in one call.
func (s *Service) ImportDirect(ctx context.Context, tenant string, kind core.Kind, fileName string, r io.Reader) (*CommitResult, error) {
	p, err := s.Preview(ctx, tenant, kind, fileName, r)
	if err != nil {
		return nil, err
	}
	return s.Commit(ctx, tenant, kind, p.SessionToken)
}

// Discard drops a staged session without committing it.
func (s *Service) Discard(ctx context.Context, tenant, token string) error {
	if tenant == "" {
		return core.ErrTenantRequired
	}
	return s.staging.Discard(ctx, tenant, token)
}

// History lists the tenant's most recent commits.
func (s *Service) History(ctx context.Context, tenant string, limit int) ([]store.ImportLog, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	return s.store.Imports(ctx, tenant, limit)
}

func (s *Service) persist(ctx context.Context, sess *staging.Session) (*CommitResult, error) {
	log := logging.WithFields(ctx, "kind", sess.Kind, "session", sess.Token)

	unlock := s.commits.Lock(commitKey{sess.TenantID, sess.Kind})
	defer unlock()

	total, _, invalid := sess.Counts()
	batch := store.Batch{
		TenantID:  sess.TenantID,
		Kind:      sess.Kind,
		ImportID:  uuid.NewString(),
		FileName:  sess.FileName,
		Principal: core.PrincipalFromContext(ctx),
		Records:   sess.Records(),
		Skipped:   invalid,
	}

	start := time.Now()
	ins, err := s.store.Insert(ctx, batch)
	if err != nil {
		s.metrics.ObserveCommit(string(sess.Kind), 0, 0, 0, err)
		log.Error("commit failed", "error", err)
		return nil, fmt.Errorf("commit %s: %w", sess.Kind, err)
	}
	s.metrics.ObserveCommit(string(sess.Kind), len(ins.Inserted), len(ins.Duplicates), invalid, nil)

	res := &CommitResult{
		ImportID:       batch.ImportID,
		Kind:           sess.Kind,
		InsertedCount:  len(ins.Inserted),
		SkippedCount:   total - len(ins.Inserted),
		DuplicateCount: len(ins.Duplicates),
		Duplicates:     ins.Duplicates,
	}

	// The rows are durable from here on; failures below are logged and
	// left to a later recalculation rather than failing the commit.
	affected, err := s.affectedOrders(context.WithoutCancel(ctx), sess.TenantID, sess.Kind, ins.Inserted)
	if err != nil {
		log.Warn("could not resolve affected orders", "error", err)
	}
	res.AffectedOrderIDs = affected
	if res.AffectedOrderIDs == nil {
		res.AffectedOrderIDs = []string{}
	}
	if len(affected) > 0 && s.engine != nil {
		if err := s.engine.Submit(sess.TenantID, affected); err != nil {
			log.Warn("recalculation not fully queued", "orders", len(affected), "error", err)
		}
	}

	log.Info("upload committed",
		"import_id", res.ImportID,
		"inserted", res.InsertedCount,
		"skipped", res.SkippedCount,
		"duplicates", res.DuplicateCount,
		"affected_orders", len(res.AffectedOrderIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// affectedOrders maps freshly inserted records to the orders whose profit
// they change: the orders themselves, orders sharing a purchased SKU, or
// orders a logistics record links to.
func (s *Service) affectedOrders(ctx context.Context, tenant string, kind core.Kind, inserted []core.Record) ([]string, error) {
	if len(inserted) == 0 {
		return nil, nil
	}
	switch kind {
	case core.KindOrders:
		ids := make([]string, 0, len(inserted))
		for _, r := range inserted {
			ids = append(ids, r.Key())
		}
		sort.Strings(ids)
		return ids, nil

	case core.KindPurchases:
		skus := make(map[string]struct{})
		for _, r := range inserted {
			if p, ok := r.(core.Purchase); ok {
				skus[p.SKU] = struct{}{}
			}
		}
		return s.store.OrderIDsBySKU(ctx, tenant, keys(skus))

	case core.KindLogistics:
		linked := make(map[string]struct{})
		for _, r := range inserted {
			if l, ok := r.(core.LogisticsRecord); ok && l.OrderID != "" {
				linked[l.OrderID] = struct{}{}
			}
		}
		if len(linked) == 0 {
			return nil, nil
		}
		return s.store.ExistingOrderIDs(ctx, tenant, keys(linked))
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
}

func (s *Service) release(ctx context.Context, token string) {
	if err := s.staging.Release(context.WithoutCancel(ctx), token); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		logging.FromContext(ctx).Warn("could not release session", "session", token, "error", err)
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
