package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/betawatch/betawatch/internal/breaker"
	"github.com/betawatch/betawatch/internal/cache"
	"github.com/betawatch/betawatch/internal/fetch"
	"github.com/betawatch/betawatch/internal/metrics"
	"github.com/betawatch/betawatch/internal/parse"
	"github.com/betawatch/betawatch/internal/ratelimit"
	"github.com/betawatch/betawatch/internal/retry"
	"github.com/betawatch/betawatch/internal/track"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher scripts responses per call and counts network activity.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     atomic.Int64
	responses []fakeResponse
	// fallback used when the script is exhausted
	fallback fakeResponse
	// block, when non-nil, is closed to release in-flight fetches
	block chan struct{}
}

type fakeResponse struct {
	body   string
	status int
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (fetch.Response, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return fetch.Response{}, &fetch.NetworkError{Kind: fetch.KindTimeout, URL: url, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	resp := f.fallback
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	if resp.err != nil {
		return fetch.Response{}, resp.err
	}
	status := resp.status
	if status == 0 {
		status = http.StatusOK
	}
	return fetch.Response{Body: []byte(resp.body), StatusCode: status}, nil
}

func openBody() string {
	return `<html><head><title>Join the Procreate beta - TestFlight - Apple</title></head>` +
		`<body><div class="beta-status"><span>Join the beta</span></div></body></html>`
}

func netErr() error {
	return &fetch.NetworkError{Kind: fetch.KindConnection, URL: "test", Err: errors.New("connection refused")}
}

type testEnv struct {
	checker *Checker
	fetcher *fakeFetcher
	breaker *breaker.Breaker
	metrics *metrics.Collector
	tracker *track.Tracker
}

func newTestEnv(t *testing.T, cfg Config, fetcher *fakeFetcher) *testEnv {
	t.Helper()
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}
	}

	brk := breaker.New(5, time.Minute)
	collector := metrics.NewCollector()
	tracker := track.NewTracker()
	c := New(cfg, fetcher,
		parse.NewParser(nil),
		ratelimit.NewLimiter(100, time.Minute),
		brk,
		cache.New[Record](16),
		tracker,
		collector,
		testLogger(),
	)
	return &testEnv{checker: c, fetcher: fetcher, breaker: brk, metrics: collector, tracker: tracker}
}

func TestCheck_InvalidKeyRejectedBeforeNetwork(t *testing.T) {
	tests := []string{"bad!", "short", "waytoolongforakey", "", "with space", "dash-key1"}

	fetcher := &fakeFetcher{fallback: fakeResponse{body: openBody()}}
	env := newTestEnv(t, Config{}, fetcher)

	for _, key := range tests {
		_, err := env.checker.Check(context.Background(), key)
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Check(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("fetch calls = %d for invalid keys, want 0", got)
	}
}

func TestCheck_OpenBetaNotifiesOnFirstObservation(t *testing.T) {
	fetcher := &fakeFetcher{fallback: fakeResponse{body: openBody()}}
	env := newTestEnv(t, Config{}, fetcher)

	outcome, err := env.checker.Check(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if outcome.Record.Status != parse.StatusOpen {
		t.Errorf("Status = %q, want open", outcome.Record.Status)
	}
	if outcome.Record.DisplayName != "Procreate" {
		t.Errorf("DisplayName = %q, want Procreate", outcome.Record.DisplayName)
	}
	if !outcome.Notify {
		t.Error("first open observation must set Notify")
	}
	if outcome.Record.FromCache {
		t.Error("first check must not be served from cache")
	}
}

func TestCheck_SecondCheckWithinTTLServedFromCache(t *testing.T) {
	fetcher := &fakeFetcher{fallback: fakeResponse{body: openBody()}}
	env := newTestEnv(t, Config{CacheTTL: time.Minute}, fetcher)

	if _, err := env.checker.Check(context.Background(), "abc12345"); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	outcome, err := env.checker.Check(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if !outcome.Record.FromCache {
		t.Error("second check within TTL must come from cache")
	}
	if outcome.Record.Status != parse.StatusOpen {
		t.Errorf("cached Status = %q, want open", outcome.Record.Status)
	}
	if outcome.Notify {
		t.Error("cache hits must never notify")
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (no new network call on cache hit)", got)
	}

	snap := env.metrics.Snapshot()
	if snap.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", snap.CacheHits)
	}
}

func TestCheck_ErrorResultsNotCached(t *testing.T) {
	fetcher := &fakeFetcher{
		responses: []fakeResponse{{err: netErr()}, {body: openBody()}},
	}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}}, fetcher)

	outcome, err := env.checker.Check(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if outcome.Record.Status != parse.StatusError {
		t.Fatalf("Status = %q, want error", outcome.Record.Status)
	}

	// the error must not mask recovery behind a cached record
	outcome, err = env.checker.Check(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if outcome.Record.FromCache {
		t.Error("error outcomes must not be cached")
	}
	if outcome.Record.Status != parse.StatusOpen {
		t.Errorf("Status = %q after recovery, want open", outcome.Record.Status)
	}
}

func TestCheck_RetriesNetworkErrorsThenAggregates(t *testing.T) {
	fetcher := &fakeFetcher{fallback: fakeResponse{err: netErr()}}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond}}, fetcher)

	outcome, err := env.checker.Check(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if got := fetcher.calls.Load(); got != 3 {
		t.Errorf("fetch calls = %d, want 3 retry attempts", got)
	}
	if outcome.Record.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", outcome.Record.Attempts)
	}
	if want := "failed after 3 attempts"; len(outcome.Record.ErrorDetail) == 0 ||
		outcome.Record.ErrorDetail[:len(want)] != want {
		t.Errorf("ErrorDetail = %q, want prefix %q", outcome.Record.ErrorDetail, want)
	}
}

func TestCheck_TerminalStatusesNotRetried(t *testing.T) {
	tests := []struct {
		name string
		body string
		want parse.Status
	}{
		{"full", `<div class="beta-status"><span>This beta is full.</span></div>`, parse.StatusFull},
		{"closed", `<div class="beta-status"><span>This beta isn't accepting any new testers.</span></div>`, parse.StatusClosed},
		{"unknown", `<p>unrecognized content</p>`, parse.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{fallback: fakeResponse{body: tt.body}}
			env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond}}, fetcher)

			outcome, err := env.checker.Check(context.Background(), "abc12345")
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if outcome.Record.Status != tt.want {
				t.Errorf("Status = %q, want %q", outcome.Record.Status, tt.want)
			}
			if got := fetcher.calls.Load(); got != 1 {
				t.Errorf("fetch calls = %d, want 1 (valid classifications are terminal)", got)
			}
		})
	}
}

func TestCheck_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	fetcher := &fakeFetcher{fallback: fakeResponse{err: netErr()}}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}}, fetcher)

	// breaker threshold in newTestEnv is 5; use distinct keys so the cache
	// never interferes
	keys := []string{"aaaa1111", "bbbb2222", "cccc3333", "dddd4444", "eeee5555"}
	for _, key := range keys {
		if _, err := env.checker.Check(context.Background(), key); err != nil {
			t.Fatalf("Check(%q) error = %v", key, err)
		}
	}
	if got := env.breaker.State(); got != breaker.StateOpen {
		t.Fatalf("breaker state = %q after 5 failures, want OPEN", got)
	}

	callsBefore := fetcher.calls.Load()
	outcome, err := env.checker.Check(context.Background(), "ffff6666")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if outcome.Record.Status != parse.StatusError {
		t.Errorf("Status = %q, want error while circuit open", outcome.Record.Status)
	}
	if outcome.Record.ErrorDetail != "circuit open" {
		t.Errorf("ErrorDetail = %q, want %q", outcome.Record.ErrorDetail, "circuit open")
	}
	if got := fetcher.calls.Load(); got != callsBefore {
		t.Errorf("fetch calls = %d, want %d (zero network calls while open)", got, callsBefore)
	}
}

func TestCheck_CircuitOpenDoesNotFeedFailureTally(t *testing.T) {
	fetcher := &fakeFetcher{fallback: fakeResponse{err: netErr()}}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}}, fetcher)

	keys := []string{"aaaa1111", "bbbb2222", "cccc3333", "dddd4444", "eeee5555"}
	for _, key := range keys {
		if _, err := env.checker.Check(context.Background(), key); err != nil {
			t.Fatalf("Check(%q) error = %v", key, err)
		}
	}

	before := env.breaker.Snapshot()
	if _, err := env.checker.Check(context.Background(), "ffff6666"); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	after := env.breaker.Snapshot()

	if after.ConsecutiveFailures != before.ConsecutiveFailures {
		t.Errorf("short-circuited check moved the failure tally: %d -> %d",
			before.ConsecutiveFailures, after.ConsecutiveFailures)
	}
}

func TestCheck_AtMostOneInFlightPerKey(t *testing.T) {
	fetcher := &fakeFetcher{
		fallback: fakeResponse{body: openBody()},
		block:    make(chan struct{}),
	}
	env := newTestEnv(t, Config{}, fetcher)

	const callers = 10
	var wg sync.WaitGroup
	var notifies atomic.Int32
	outcomes := make([]Outcome, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := env.checker.Check(context.Background(), "abc12345")
			if err != nil {
				t.Errorf("Check() error = %v", err)
				return
			}
			outcomes[i] = outcome
			if outcome.Notify {
				notifies.Add(1)
			}
		}(i)
	}

	// give all callers time to either start the fetch or join it
	time.Sleep(100 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d for %d concurrent callers, want 1", got, callers)
	}
	if got := notifies.Load(); got != 1 {
		t.Errorf("notify fired %d times, want exactly once", got)
	}
	for i, outcome := range outcomes {
		if outcome.Record.Status != parse.StatusOpen {
			t.Errorf("caller %d Status = %q, want open", i, outcome.Record.Status)
		}
	}
}

func TestCheck_JoinerOutlivesCancelledLeader(t *testing.T) {
	fetcher := &fakeFetcher{
		fallback: fakeResponse{body: openBody()},
		block:    make(chan struct{}),
	}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}}, fetcher)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := env.checker.Check(leaderCtx, "abc12345")
		leaderErr <- err
	}()

	// wait until the leader is mid-fetch so the second caller joins it
	deadline := time.Now().Add(time.Second)
	for fetcher.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("leader never started fetching")
		}
		time.Sleep(time.Millisecond)
	}

	type result struct {
		outcome Outcome
		err     error
	}
	joinerCh := make(chan result, 1)
	go func() {
		outcome, err := env.checker.Check(context.Background(), "abc12345")
		joinerCh <- result{outcome, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancelLeader()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader Check() error = %v, want context.Canceled", err)
	}
	close(fetcher.block)

	select {
	case res := <-joinerCh:
		if res.err != nil {
			t.Fatalf("joiner Check() error = %v", res.err)
		}
		if res.outcome.Record.Status != parse.StatusOpen {
			t.Errorf("joiner Status = %q, want open", res.outcome.Record.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("joiner with a live context must run its own check after the leader is cancelled")
	}

	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2 (leader's aborted fetch plus the joiner's own)", got)
	}
}

func TestCheck_DistinctKeysRunIndependently(t *testing.T) {
	fetcher := &fakeFetcher{fallback: fakeResponse{body: openBody()}}
	env := newTestEnv(t, Config{}, fetcher)

	var wg sync.WaitGroup
	keys := []string{"aaaa1111", "bbbb2222", "cccc3333"}
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if _, err := env.checker.Check(context.Background(), key); err != nil {
				t.Errorf("Check(%q) error = %v", key, err)
			}
		}(key)
	}
	wg.Wait()

	if got := fetcher.calls.Load(); got != int64(len(keys)) {
		t.Errorf("fetch calls = %d, want %d (one per distinct key)", got, len(keys))
	}
}

func TestCheck_CancellationPropagates(t *testing.T) {
	fetcher := &fakeFetcher{
		fallback: fakeResponse{err: netErr()},
	}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 5, BaseDelay: time.Hour}}, fetcher)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := env.checker.Check(ctx, "abc12345")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Check() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Check() must return promptly instead of sleeping out the backoff")
	}
}

func TestCheck_CancellationOnFinalAttemptIsAnAbort(t *testing.T) {
	fetcher := &fakeFetcher{
		fallback: fakeResponse{body: openBody()},
		block:    make(chan struct{}),
	}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}}, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := env.checker.Check(ctx, "abc12345")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Check() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Check() cancelled mid-fetch must return promptly")
	}

	if got := env.breaker.Snapshot().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures = %d after an aborted check, want 0", got)
	}
	if got := env.metrics.Snapshot().TotalChecks; got != 0 {
		t.Errorf("TotalChecks = %d after an aborted check, want 0", got)
	}
	if _, ok := env.tracker.Previous("abc12345"); ok {
		t.Error("aborted check must not record a status observation")
	}
}

func TestCheck_HTTPErrorMapsToErrorStatus(t *testing.T) {
	fetcher := &fakeFetcher{fallback: fakeResponse{status: http.StatusNotFound, body: "gone"}}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}}, fetcher)

	outcome, err := env.checker.Check(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if outcome.Record.Status != parse.StatusError {
		t.Errorf("Status = %q, want error for HTTP 404", outcome.Record.Status)
	}
	// ERROR-classified attempts are retried
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2 (HTTP errors are retryable)", got)
	}
}

func TestCheck_MetricsRecorded(t *testing.T) {
	fetcher := &fakeFetcher{
		responses: []fakeResponse{{body: openBody()}, {err: netErr()}},
	}
	env := newTestEnv(t, Config{Retry: retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}}, fetcher)

	if _, err := env.checker.Check(context.Background(), "aaaa1111"); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if _, err := env.checker.Check(context.Background(), "bbbb2222"); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	snap := env.metrics.Snapshot()
	if snap.TotalChecks != 2 {
		t.Errorf("TotalChecks = %d, want 2", snap.TotalChecks)
	}
	if snap.SuccessCount != 1 || snap.FailureCount != 1 {
		t.Errorf("Success/Failure = %d/%d, want 1/1", snap.SuccessCount, snap.FailureCount)
	}
	if snap.PerStatus["open"] != 1 || snap.PerStatus["error"] != 1 {
		t.Errorf("PerStatus = %v, want one open and one error", snap.PerStatus)
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{"abc12345", "ABCDEF123456", "12345678"}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{"", "short", "thirteenchars", "bad!", "has space"}
	for _, key := range invalid {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}
