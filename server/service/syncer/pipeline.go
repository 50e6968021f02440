// Package syncer implements the fetch-validate-commit pipeline that is the only writer of cache slots.
package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	syncerrors "github.com/hrygo/fairway/server/internal/errors"
	"github.com/hrygo/fairway/server/internal/observability"
	"github.com/hrygo/fairway/store"
	"github.com/hrygo/fairway/store/cache"
)

// Fetcher retrieves the raw body of a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Validator fully decodes a payload and returns its header.
// *store.Codec satisfies it for every envelope shape.
type Validator interface {
	Validate(data []byte) (store.Header, error)
}

// Request describes one fetch-validate-commit run.
type Request struct {
	// Kind labels logs and metrics, e.g. "players" or "rounds".
	Kind      string
	Location  string
	Slot      *cache.Slot
	Validator Validator
}

// Config configures a Pipeline.
type Config struct {
	// MaxConcurrentFetches caps network fetches in flight across all keys.
	MaxConcurrentFetches int64
	Metrics              *observability.Metrics
	Logger               *slog.Logger
}

// Pipeline runs fetch-validate-commit attempts.
//
// Concurrent runs for one slot key are coalesced: every caller waits for the
// same attempt and receives its result. Runs for different keys proceed
// independently, bounded only by MaxConcurrentFetches.
type Pipeline struct {
	fetcher Fetcher
	metrics *observability.Metrics
	logger  *slog.Logger
	sem     *semaphore.Weighted

	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
	commits sync.Map // slot key -> *sync.Mutex
}

// flight is the cancellation scope shared by every caller waiting on one key.
// It is canceled once all of them have gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewPipeline creates a pipeline fetching through fetcher.
func NewPipeline(fetcher Fetcher, config *Config) *Pipeline {
	if config == nil {
		config = &Config{}
	}
	limit := config.MaxConcurrentFetches
	if limit <= 0 {
		limit = 4
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
		sem:     semaphore.NewWeighted(limit),
		flights: make(map[string]*flight),
	}
}

// Metrics returns the collector the pipeline records into.
func (p *Pipeline) Metrics() *observability.Metrics {
	return p.metrics
}

// Run performs one fetch-validate-commit attempt for req, or joins the attempt already in flight
// for the same slot. It never returns a nil Result and never panics on fetch, decode, or I/O failure.
// A caller whose ctx ends before the attempt completes gets a CANCELED result; the attempt
// itself is abandoned before commit when no caller is left waiting.
func (p *Pipeline) Run(ctx context.Context, req *Request) *Result {
	if req == nil || req.Slot == nil || req.Validator == nil {
		return &Result{Outcome: Unavailable, Err: syncerrors.Wrap(errors.New("incomplete sync request"), syncerrors.ErrCodeIO, "invalid request")}
	}
	key := req.Slot.Key()

	for {
		if err := ctx.Err(); err != nil {
			return p.canceled(req, err)
		}

		f := p.join(ctx, key)
		ch := p.group.DoChan(key, func() (any, error) {
			return p.run(f.ctx, req), nil
		})

		select {
		case <-ctx.Done():
			p.leave(key, f)
			return p.canceled(req, ctx.Err())
		case res := <-ch:
			p.leave(key, f)
			result := res.Val.(*Result)
			// The shared attempt was abandoned by other callers; this one still wants it.
			if syncerrors.IsCode(result.Err, syncerrors.ErrCodeCanceled) && ctx.Err() == nil {
				continue
			}
			return result
		}
	}
}

func (p *Pipeline) join(ctx context.Context, key string) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		p.flights[key] = f
	}
	f.waiters++
	return f
}

func (p *Pipeline) leave(key string, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if p.flights[key] == f {
		delete(p.flights, key)
	}
}

// waiters reports how many callers are attached to the flight for key.
func (p *Pipeline) waiters(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.flights[key]; ok {
		return f.waiters
	}
	return 0
}

func (p *Pipeline) commitLock(key string) *sync.Mutex {
	mu, _ := p.commits.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (p *Pipeline) run(ctx context.Context, req *Request) *Result {
	key := req.Slot.Key()
	syncCtx := observability.NewSyncContext(p.logger, req.Kind, key)
	ctx = observability.WithSyncContext(ctx, syncCtx)
	p.metrics.RecordAttempt(req.Kind)

	ctx, span := observability.Tracer().Start(ctx, "syncer.Run")
	span.SetAttributes(
		attribute.String(observability.LogFieldRunID, syncCtx.RunID),
		attribute.String(observability.LogFieldResource, key),
		attribute.String(observability.LogFieldLocation, req.Location),
	)
	defer span.End()

	result := p.attempt(ctx, req)

	span.SetAttributes(attribute.String(observability.LogFieldOutcome, result.Outcome.String()))
	attrs := []slog.Attr{
		slog.String(observability.LogFieldOutcome, result.Outcome.String()),
		slog.Int64(observability.LogFieldDuration, syncCtx.DurationMs()),
	}
	if result.Header != nil {
		attrs = append(attrs, slog.Time("updated_at", result.Header.UpdatedAt))
	}
	if result.Err != nil {
		code := syncerrors.GetCodeFromError(result.Err, syncerrors.ErrCodeIO)
		p.metrics.RecordFailure(req.Kind, string(code))
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, string(code))
		attrs = append(attrs, slog.String(observability.LogFieldErrorCode, string(code)))
		syncCtx.Error("sync attempt did not commit", result.Err, attrs...)
	} else {
		syncCtx.Info("sync attempt completed", attrs...)
	}
	p.metrics.RecordOutcome(req.Kind, result.Outcome.String(), syncCtx.Duration())
	return result
}

func (p *Pipeline) attempt(ctx context.Context, req *Request) *Result {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return p.failed(req, syncerrors.Canceled(err))
	}
	body, err := p.fetcher.Fetch(ctx, req.Location)
	p.sem.Release(1)
	if err != nil {
		if ctx.Err() != nil {
			return p.failed(req, syncerrors.Canceled(err))
		}
		return p.failed(req, syncerrors.Network("fetch "+req.Location, err))
	}

	header, err := req.Validator.Validate(body)
	if err != nil {
		return p.failed(req, syncerrors.Decode("decode "+req.Location, err))
	}
	if !header.CountMatches() {
		if syncCtx, ok := observability.FromContext(ctx); ok {
			syncCtx.Warn("declared count does not match items",
				slog.Int("declared", header.Count),
				slog.Int("actual", header.ItemCount),
			)
		}
	}

	return p.commit(ctx, req, header, body)
}

// commit writes body unless the slot already holds an equal or newer envelope.
func (p *Pipeline) commit(ctx context.Context, req *Request, header store.Header, body []byte) *Result {
	mu := p.commitLock(req.Slot.Key())
	mu.Lock()
	defer mu.Unlock()

	// A caller that abandoned the run must not see a write land after it left.
	if err := ctx.Err(); err != nil {
		return p.failed(req, syncerrors.Canceled(err))
	}

	prior, err := Current(req.Slot, req.Validator)
	if err != nil {
		return p.failed(req, syncerrors.IO("read "+req.Slot.Key(), err))
	}
	if !Accept(prior, header) {
		return &Result{Outcome: StaleOK, Fetched: true, Header: prior}
	}

	_, span := observability.Tracer().Start(ctx, "syncer.Commit")
	defer span.End()
	if err := req.Slot.Write(body); err != nil {
		span.RecordError(err)
		return p.failed(req, syncerrors.IO("write "+req.Slot.Key(), err))
	}
	return &Result{Outcome: Fresh, Fetched: true, Header: &header}
}

// failed builds the result of an attempt that committed nothing.
func (p *Pipeline) failed(req *Request, cause *syncerrors.SyncError) *Result {
	cause.WithContext(observability.LogFieldResource, req.Slot.Key())
	result := &Result{Outcome: Unavailable, Err: cause}
	prior, err := Current(req.Slot, req.Validator)
	if err != nil {
		p.logger.Warn("failed to read cache slot", slog.String(observability.LogFieldResource, req.Slot.Key()), slog.String("error", err.Error()))
		return result
	}
	if prior != nil {
		result.Outcome = StaleOK
		result.Header = prior
	}
	return result
}

func (p *Pipeline) canceled(req *Request, err error) *Result {
	return p.failed(req, syncerrors.Canceled(err))
}

// Current returns the header of the envelope held by slot, or nil when the slot is empty.
// A slot whose content no longer decodes is treated as empty.
func Current(slot *cache.Slot, validator Validator) (*store.Header, error) {
	data, err := slot.Read()
	if err != nil {
		if errors.Is(err, cache.ErrSlotNotFound) {
			return nil, nil
		}
		return nil, err
	}
	header, err := validator.Validate(data)
	if err != nil {
		slog.Warn("ignoring unreadable cache slot", slog.String(observability.LogFieldResource, slot.Key()), slog.String("error", err.Error()))
		return nil, nil
	}
	return &header, nil
}
