package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func statusServer(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		code := codes[len(codes)-1]
		if n <= len(codes) {
			code = codes[n-1]
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestDeliver_SuccessOnFirstAttempt(t *testing.T) {
	var got Payload
	var contentType, userAgent, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		userAgent = r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	paidAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	job := &domain.Job{
		ID:         "6f1c0a52-8d0e-4c36-9a53-3f1f3b9b7c11",
		AgentID:    "agent-1",
		SkillID:    "skill-7",
		ServiceKey: "summarize",
		Input:      json.RawMessage(`{"text":"hello"}`),
		Price:      domain.MustParseMoney("10.00"),
		PaidAt:     &paidAt,
	}

	d := NewDispatcher(testLogger())
	res := d.Deliver(context.Background(), srv.URL, NewPayload(job), DefaultOptions())

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.NoError(t, res.Err)

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, DefaultUserAgent, userAgent)
	assert.Equal(t, job.ID, got.JobUUID)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, "skill-7", got.SkillID)
	assert.Equal(t, "summarize", got.ServiceKey)
	assert.JSONEq(t, `{"text":"hello"}`, string(got.Input))
	assert.Equal(t, job.Price, got.Price)
	require.NotNil(t, got.PaidAt)
	assert.True(t, paidAt.Equal(*got.PaidAt))
}

func TestDeliver_ClientErrorAbortsImmediately(t *testing.T) {
	srv, hits := statusServer(t, http.StatusNotFound)
	sleeper := &recordingSleep{}

	d := NewDispatcher(testLogger(), WithSleep(sleeper.sleep))
	res := d.Deliver(context.Background(), srv.URL, map[string]string{"k": "v"}, DefaultOptions())

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, sleeper.delays)
	require.Len(t, res.History, 1)
	assert.Equal(t, OutcomeAbort, res.History[0].Outcome)

	require.Error(t, res.Err)
	assert.True(t, domain.IsWebhookDelivery(res.Err))
	assert.Contains(t, res.Err.Error(), domain.WebhookFailureMessage)
}

func TestDeliver_CustomHTTPClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	// The default client rejects the test certificate.
	d := NewDispatcher(testLogger(), WithHTTPClient(srv.Client()))
	res := d.Deliver(context.Background(), srv.URL, map[string]string{"k": "v"}, DefaultOptions())

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.NoError(t, res.Err)
}

func TestDeliver_ServerErrorsExhaustAttempts(t *testing.T) {
	srv, hits := statusServer(t, http.StatusServiceUnavailable)
	sleeper := &recordingSleep{}

	d := NewDispatcher(testLogger(), WithSleep(sleeper.sleep))
	res := d.Deliver(context.Background(), srv.URL, "payload", DefaultOptions())

	assert.False(t, res.Success)
	assert.Equal(t, DefaultMaxAttempts, res.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, int32(DefaultMaxAttempts), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)
	for _, a := range res.History {
		assert.Equal(t, OutcomeRetry, a.Outcome)
	}
	assert.True(t, domain.IsWebhookDelivery(res.Err))
}

func TestDeliver_RecoversAfterTransientFailure(t *testing.T) {
	srv, hits := statusServer(t, http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK)
	sleeper := &recordingSleep{}

	d := NewDispatcher(testLogger(), WithSleep(sleeper.sleep))
	res := d.Deliver(context.Background(), srv.URL, "payload", DefaultOptions())

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
	assert.NoError(t, res.Err)
}

func TestDeliver_EveryAttemptTimesOut(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	opts := Options{
		MaxAttempts:       4,
		PerAttemptTimeout: 50 * time.Millisecond,
		DelaySchedule:     []time.Duration{0},
	}

	d := NewDispatcher(testLogger())
	res := d.Deliver(context.Background(), srv.URL, "payload", opts)

	assert.False(t, res.Success)
	assert.Equal(t, opts.MaxAttempts, res.Attempts)
	assert.Equal(t, 0, res.StatusCode)
	assert.Equal(t, int32(opts.MaxAttempts), hits.Load())
	assert.True(t, domain.IsWebhookDelivery(res.Err))
}

func TestDeliver_WaitsForScheduleBeforeRetry(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(testLogger())
	res := d.Deliver(context.Background(), srv.URL, "payload", DefaultOptions())

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 2)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), time.Second)
	assert.Equal(t, time.Second, res.History[1].Delay)
}

func TestDeliver_NetworkErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sleeper := &recordingSleep{}
	d := NewDispatcher(testLogger(), WithSleep(sleeper.sleep))
	res := d.Deliver(context.Background(), url, "payload", Options{MaxAttempts: 3})

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, sleeper.delays, 2)
	assert.Error(t, res.History[0].Err)
}

func TestDeliver_ShortScheduleRepeatsLastDelay(t *testing.T) {
	srv, _ := statusServer(t, http.StatusInternalServerError)
	sleeper := &recordingSleep{}

	d := NewDispatcher(testLogger(), WithSleep(sleeper.sleep))
	res := d.Deliver(context.Background(), srv.URL, "payload", Options{
		MaxAttempts:   5,
		DelaySchedule: []time.Duration{0, 10 * time.Millisecond},
	})

	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
	}, sleeper.delays)
}

func TestDeliver_CanceledContextStopsRetries(t *testing.T) {
	srv, hits := statusServer(t, http.StatusInternalServerError)

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(testLogger(), WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	res := d.Deliver(ctx, srv.URL, "payload", DefaultOptions())

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), hits.Load())
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		err  error
		want Outcome
	}{
		{200, nil, OutcomeSuccess},
		{204, nil, OutcomeSuccess},
		{299, nil, OutcomeSuccess},
		{301, nil, OutcomeRetry},
		{400, nil, OutcomeAbort},
		{401, nil, OutcomeAbort},
		{404, nil, OutcomeAbort},
		{499, nil, OutcomeAbort},
		{500, nil, OutcomeRetry},
		{503, nil, OutcomeRetry},
		{0, context.DeadlineExceeded, OutcomeRetry},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.code, tt.err), "code=%d", tt.code)
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.withDefaults()

	assert.Equal(t, DefaultMaxAttempts, o.MaxAttempts)
	assert.Equal(t, DefaultPerAttemptTimeout, o.PerAttemptTimeout)
	assert.Equal(t, DefaultDelaySchedule, o.DelaySchedule)
	assert.Equal(t, time.Duration(0), o.delayBefore(1))
	assert.Equal(t, time.Second, o.delayBefore(2))
	assert.Equal(t, 4*time.Second, o.delayBefore(4))
	assert.Equal(t, 4*time.Second, o.delayBefore(9))
}
