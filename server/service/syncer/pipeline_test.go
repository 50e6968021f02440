package syncer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/hrygo/fairway/server/internal/errors"
	"github.com/hrygo/fairway/store"
	"github.com/hrygo/fairway/store/cache"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  atomic.Int32
	hook   func(ctx context.Context, location string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string][]byte{}, errs: map[string]error{}}
}

func (f *fakeFetcher) serve(location string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[location] = body
	delete(f.errs, location)
}

func (f *fakeFetcher) fail(location string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[location] = err
}

func (f *fakeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook(ctx, location)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[location]; err != nil {
		return nil, err
	}
	body, ok := f.bodies[location]
	if !ok {
		return nil, fmt.Errorf("GET %s: unexpected status 404", location)
	}
	return body, nil
}

func coursesPayload(updatedAt string, slugs ...string) []byte {
	items := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		items = append(items, fmt.Sprintf(`{"slug":%q,"name":%q}`, slug, strings.ToUpper(slug)))
	}
	return []byte(fmt.Sprintf(`{"version":1,"updatedAt":%q,"count":%d,"courses":[%s]}`, updatedAt, len(slugs), strings.Join(items, ",")))
}

type fixture struct {
	pipeline *Pipeline
	fetcher  *fakeFetcher
	dir      *cache.Dir
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir, err := cache.OpenDir(t.TempDir())
	require.NoError(t, err)
	fetcher := newFakeFetcher()
	return &fixture{
		pipeline: NewPipeline(fetcher, &Config{MaxConcurrentFetches: 4}),
		fetcher:  fetcher,
		dir:      dir,
	}
}

func (f *fixture) request(t *testing.T, key string) *Request {
	t.Helper()
	slot, err := f.dir.Slot(key)
	require.NoError(t, err)
	return &Request{Kind: "courses", Location: "https://origin.test/" + key + ".json", Slot: slot, Validator: store.CoursesCodec}
}

func cachedSlugs(t *testing.T, slot *cache.Slot) []string {
	t.Helper()
	data, err := slot.Read()
	require.NoError(t, err)
	envelope, err := store.CoursesCodec.Decode(data)
	require.NoError(t, err)
	slugs := make([]string, 0, len(envelope.Items))
	for _, c := range envelope.Items {
		slugs = append(slugs, c.Slug)
	}
	return slugs
}

func TestAccept(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		prior     *store.Header
		candidate store.Header
		want      bool
	}{
		{"no prior", nil, store.Header{UpdatedAt: base}, true},
		{"newer", &store.Header{UpdatedAt: base}, store.Header{UpdatedAt: base.Add(time.Second)}, true},
		{"equal", &store.Header{UpdatedAt: base}, store.Header{UpdatedAt: base}, false},
		{"equal instant in another zone", &store.Header{UpdatedAt: base}, store.Header{UpdatedAt: base.In(time.FixedZone("X", 3600))}, false},
		{"older", &store.Header{UpdatedAt: base}, store.Header{UpdatedAt: base.Add(-time.Hour)}, false},
		{"newer with lower version", &store.Header{Version: 5, UpdatedAt: base}, store.Header{Version: 1, UpdatedAt: base.Add(time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Accept(tt.prior, tt.candidate))
		})
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")
	ctx := context.Background()

	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a", "b"))
	result := f.pipeline.Run(ctx, req)
	require.NoError(t, result.Err)
	assert.Equal(t, Fresh, result.Outcome)
	assert.True(t, result.Fetched)
	assert.Equal(t, []string{"a", "b"}, cachedSlugs(t, req.Slot))

	f.fetcher.serve(req.Location, coursesPayload("2023-12-31T00:00:00Z", "z"))
	result = f.pipeline.Run(ctx, req)
	require.NoError(t, result.Err)
	assert.Equal(t, StaleOK, result.Outcome)
	assert.True(t, result.Fetched)
	require.NotNil(t, result.Header)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), result.Header.UpdatedAt)
	assert.Equal(t, []string{"a", "b"}, cachedSlugs(t, req.Slot))

	f.fetcher.serve(req.Location, coursesPayload("2024-02-01T00:00:00Z", "c"))
	result = f.pipeline.Run(ctx, req)
	require.NoError(t, result.Err)
	assert.Equal(t, Fresh, result.Outcome)
	assert.Equal(t, []string{"c"}, cachedSlugs(t, req.Slot))

	assert.Equal(t, int32(3), f.fetcher.calls.Load())
	snapshot := f.pipeline.Metrics().Snapshot().Kinds["courses"]
	require.NotNil(t, snapshot)
	assert.Equal(t, int64(3), snapshot.Attempts)
	assert.Equal(t, int64(2), snapshot.Fresh)
	assert.Equal(t, int64(1), snapshot.StaleOK)
}

func TestPipeline_WarnsOnCountMismatch(t *testing.T) {
	var logs bytes.Buffer
	fetcher := newFakeFetcher()
	dir, err := cache.OpenDir(t.TempDir())
	require.NoError(t, err)
	pipeline := NewPipeline(fetcher, &Config{Logger: slog.New(slog.NewJSONHandler(&logs, nil))})
	slot, err := dir.Slot("courses")
	require.NoError(t, err)
	req := &Request{Kind: "courses", Location: "https://origin.test/courses.json", Slot: slot, Validator: store.CoursesCodec}

	fetcher.serve(req.Location, []byte(`{"version":1,"updatedAt":"2024-01-01T00:00:00Z","count":5,"courses":[{"slug":"st-andrews"}]}`))
	result := pipeline.Run(context.Background(), req)
	assert.Equal(t, Fresh, result.Outcome)
	assert.Contains(t, logs.String(), `"msg":"declared count does not match items"`)
	assert.Contains(t, logs.String(), `"resource":"courses"`)
	assert.Contains(t, logs.String(), `"declared":5`)
	assert.Contains(t, logs.String(), `"actual":1`)

	logs.Reset()
	fetcher.serve(req.Location, coursesPayload("2024-02-01T00:00:00Z", "st-andrews", "pebble-beach"))
	assert.Equal(t, Fresh, pipeline.Run(context.Background(), req).Outcome)
	assert.NotContains(t, logs.String(), "declared count does not match items")
}

func TestPipeline_TieKeepsCache(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")

	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a"))
	require.Equal(t, Fresh, f.pipeline.Run(context.Background(), req).Outcome)
	before, err := req.Slot.Read()
	require.NoError(t, err)

	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T01:00:00+01:00", "b"))
	result := f.pipeline.Run(context.Background(), req)
	assert.Equal(t, StaleOK, result.Outcome)
	assert.NoError(t, result.Err)

	after, err := req.Slot.Read()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPipeline_DecodeRejectionLeavesCacheUntouched(t *testing.T) {
	invalid := []string{
		`not json`,
		`{"version":1,"courses":[]}`,
		`{"version":1,"updatedAt":"2099-01-01T00:00:00Z","courses":[{"slug":"x","par":"seventy"}]}`,
		`{"version":"1","updatedAt":"2099-01-01T00:00:00Z","courses":[]}`,
		`[]`,
	}

	for _, payload := range invalid {
		t.Run(payload, func(t *testing.T) {
			f := newFixture(t)
			req := f.request(t, "courses")

			f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a", "b"))
			require.Equal(t, Fresh, f.pipeline.Run(context.Background(), req).Outcome)
			before, err := req.Slot.Read()
			require.NoError(t, err)

			f.fetcher.serve(req.Location, []byte(payload))
			result := f.pipeline.Run(context.Background(), req)
			assert.Equal(t, StaleOK, result.Outcome)
			assert.False(t, result.Fetched)
			assert.True(t, syncerrors.IsCode(result.Err, syncerrors.ErrCodeDecode))

			after, err := req.Slot.Read()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestPipeline_NetworkFailure(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")

	f.fetcher.fail(req.Location, fmt.Errorf("connection refused"))
	result := f.pipeline.Run(context.Background(), req)
	assert.Equal(t, Unavailable, result.Outcome)
	assert.Nil(t, result.Header)
	assert.True(t, syncerrors.IsCode(result.Err, syncerrors.ErrCodeNetwork))
	assert.False(t, req.Slot.Exists())

	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a"))
	require.Equal(t, Fresh, f.pipeline.Run(context.Background(), req).Outcome)

	f.fetcher.fail(req.Location, fmt.Errorf("GET: unexpected status 503"))
	result = f.pipeline.Run(context.Background(), req)
	assert.Equal(t, StaleOK, result.Outcome)
	assert.True(t, result.HasData())
	assert.True(t, syncerrors.IsCode(result.Err, syncerrors.ErrCodeNetwork))
	assert.Equal(t, []string{"a"}, cachedSlugs(t, req.Slot))

	snapshot := f.pipeline.Metrics().Snapshot().Kinds["courses"]
	assert.Equal(t, int64(2), snapshot.Failures["NETWORK"])
	assert.Equal(t, int64(1), snapshot.Unavailable)
}

func TestPipeline_StorageFailure(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")
	// A directory squatting on the slot file makes both reading and replacing it fail.
	require.NoError(t, os.MkdirAll(req.Slot.Path(), 0o750))

	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a"))
	result := f.pipeline.Run(context.Background(), req)
	assert.Equal(t, Unavailable, result.Outcome)
	assert.True(t, syncerrors.IsCode(result.Err, syncerrors.ErrCodeIO))
}

func TestPipeline_CorruptCacheIsReplaced(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")
	require.NoError(t, req.Slot.Write([]byte(`{"version":1,"updatedAt":`)))

	f.fetcher.fail(req.Location, fmt.Errorf("offline"))
	assert.Equal(t, Unavailable, f.pipeline.Run(context.Background(), req).Outcome)

	f.fetcher.serve(req.Location, coursesPayload("2020-01-01T00:00:00Z", "a"))
	assert.Equal(t, Fresh, f.pipeline.Run(context.Background(), req).Outcome)
	assert.Equal(t, []string{"a"}, cachedSlugs(t, req.Slot))
}

func TestPipeline_MonotonicUnderAnyArrivalOrder(t *testing.T) {
	candidates := [][]byte{
		coursesPayload("2024-01-01T00:00:00Z", "a"),
		coursesPayload("2024-03-01T00:00:00Z", "max"),
		coursesPayload("2023-06-01T12:00:00Z", "b"),
		coursesPayload("2024-02-29T23:59:59Z", "c"),
		coursesPayload("2024-03-01T00:00:00Z", "tie"),
		[]byte(`{"version":1,"updatedAt":"2099-01-01T00:00:00Z","courses":[null]}`),
		[]byte(`{"version":1,"updatedAt":"2098-01-01T00:00:00Z"`),
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for seed := uint64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			f := newFixture(t)
			req := f.request(t, "courses")

			order := make([][]byte, len(candidates))
			copy(order, candidates)
			rng := rand.New(rand.NewPCG(seed, seed*31))
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

			var last time.Time
			for _, payload := range order {
				f.fetcher.serve(req.Location, payload)
				result := f.pipeline.Run(context.Background(), req)
				if result.Header != nil {
					assert.False(t, result.Header.UpdatedAt.Before(last), "cache regressed")
					last = result.Header.UpdatedAt
				}
			}

			data, err := req.Slot.Read()
			require.NoError(t, err)
			header, err := store.CoursesCodec.Validate(data)
			require.NoError(t, err)
			assert.True(t, header.UpdatedAt.Equal(want))
		})
	}
}

func TestPipeline_CoalescesConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")
	release := make(chan struct{})
	f.fetcher.hook = func(ctx context.Context, _ string) {
		<-release
	}
	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a"))

	const callers = 8
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.pipeline.Run(context.Background(), req)
		}(i)
	}

	require.Eventually(t, func() bool { return f.pipeline.waiters(req.Slot.Key()) == callers }, 2*time.Second, 5*time.Millisecond)
	// Joining precedes DoChan; give the last callers time to attach to the call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.fetcher.calls.Load())
	for _, result := range results {
		assert.Same(t, results[0], result)
		assert.Equal(t, Fresh, result.Outcome)
	}
	assert.Zero(t, f.pipeline.waiters(req.Slot.Key()))
}

func TestPipeline_DifferentKeysFetchConcurrently(t *testing.T) {
	f := newFixture(t)
	var entered atomic.Int32
	both := make(chan struct{})
	f.fetcher.hook = func(ctx context.Context, _ string) {
		if entered.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
		case <-time.After(2 * time.Second):
		}
	}

	reqs := []*Request{f.request(t, "players"), f.request(t, "courses")}
	for _, req := range reqs {
		f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a"))
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req *Request) {
			defer wg.Done()
			assert.Equal(t, Fresh, f.pipeline.Run(context.Background(), req).Outcome)
		}(req)
	}
	wg.Wait()
	assert.Less(t, time.Since(start), time.Second)
}

func TestPipeline_CanceledBeforeCommit(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")
	ctx, cancel := context.WithCancel(context.Background())
	f.fetcher.hook = func(fetchCtx context.Context, _ string) {
		cancel()
		<-fetchCtx.Done()
	}
	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a"))

	result := f.pipeline.Run(ctx, req)
	assert.Equal(t, Unavailable, result.Outcome)
	assert.True(t, syncerrors.IsCode(result.Err, syncerrors.ErrCodeCanceled))

	// The abandoned attempt finishes in the background without committing.
	require.Eventually(t, func() bool {
		kinds := f.pipeline.Metrics().Snapshot().Kinds["courses"]
		return kinds != nil && kinds.Failures["CANCELED"] == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, req.Slot.Exists())
}

func TestPipeline_CanceledWaiterDoesNotAbortOthers(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "courses")
	release := make(chan struct{})
	f.fetcher.hook = func(ctx context.Context, _ string) {
		<-release
	}
	f.fetcher.serve(req.Location, coursesPayload("2024-01-01T00:00:00Z", "a"))

	leaving, cancel := context.WithCancel(context.Background())
	var canceled, stayed *Result
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		canceled = f.pipeline.Run(leaving, req)
	}()
	go func() {
		defer wg.Done()
		stayed = f.pipeline.Run(context.Background(), req)
	}()

	key := req.Slot.Key()
	require.Eventually(t, func() bool { return f.pipeline.waiters(key) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return f.pipeline.waiters(key) == 1 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.True(t, syncerrors.IsCode(canceled.Err, syncerrors.ErrCodeCanceled))
	assert.Equal(t, Fresh, stayed.Outcome)
	assert.Equal(t, int32(1), f.fetcher.calls.Load())
	assert.Equal(t, []string{"a"}, cachedSlugs(t, req.Slot))
}

func TestPipeline_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	result := f.pipeline.Run(context.Background(), &Request{})
	assert.Equal(t, Unavailable, result.Outcome)
	assert.Error(t, result.Err)
	assert.Zero(t, f.fetcher.calls.Load())
}

func TestOutcome_String(t *testing.T) {
	names := []string{Unavailable.String(), StaleOK.String(), Fresh.String()}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	assert.Equal(t, []string{"fresh", "stale_ok", "unavailable"}, sorted)
	text, err := Fresh.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(text))

	var o Outcome
	require.NoError(t, o.UnmarshalText([]byte("stale_ok")))
	assert.Equal(t, StaleOK, o)
	assert.Error(t, o.UnmarshalText([]byte("maybe")))
}
