package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/jobhunt-companion/internal/config"
	"github.com/MimeLyc/jobhunt-companion/pkg/icron"
)

type fakeScheduler struct {
	called bool
	err    error
}

func (f *fakeScheduler) Schedule(context.Context) error {
	f.called = true
	return f.err
}

type fakeCron struct {
	started bool
	stopped bool
}

func (f *fakeCron) Start() {
	f.started = true
}

func (f *fakeCron) Stop() context.Context {
	f.stopped = true
	return context.Background()
}

type fakeHTTP struct {
	listenCalled chan struct{}
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func newFakeHTTP() *fakeHTTP {
	return &fakeHTTP{
		listenCalled: make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

func (f *fakeHTTP) ListenAndServe(string) error {
	close(f.listenCalled)
	<-f.shutdownCh
	return http.ErrServerClosed
}

func (f *fakeHTTP) Shutdown(context.Context) error {
	f.shutdownOnce.Do(func() { close(f.shutdownCh) })
	return nil
}

func TestMain_StartsCronAndHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			Addr:      "127.0.0.1:0",
			UIEnabled: true,
		},
	}
	scheduler := &fakeScheduler{}
	cronEngine := &fakeCron{}
	httpSrv := newFakeHTTP()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- runWithComponents(ctx, cfg, scheduler, cronEngine, httpSrv)
	}()

	select {
	case <-httpSrv.listenCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("http server did not start")
	}

	cancel()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runWithComponents did not exit after cancellation")
	}

	assert.True(t, scheduler.called)
	assert.True(t, cronEngine.started)
	assert.True(t, cronEngine.stopped)
}

func TestMain_ScheduleFailureStopsStartup(t *testing.T) {
	scheduler := &fakeScheduler{err: errors.New("bad cron")}
	cronEngine := &fakeCron{}
	httpSrv := newFakeHTTP()

	err := runWithComponents(context.Background(), &config.Config{}, scheduler, cronEngine, httpSrv)

	require.ErrorContains(t, err, "bad cron")
	assert.False(t, cronEngine.started)
}

type fakeChecker struct {
	healthy atomic.Bool
	fail    atomic.Bool
}

func (f *fakeChecker) Health(context.Context) (bool, error) {
	if f.fail.Load() {
		return false, errors.New("connection refused")
	}
	return f.healthy.Load(), nil
}

func (f *fakeChecker) BaseURL() string { return "http://backend.test" }

func TestHealthProbe_RecordsLastResult(t *testing.T) {
	checker := &fakeChecker{}
	checker.healthy.Store(true)
	c := icron.New()
	probe := newHealthProbe(checker, c, "@every 1h")

	require.NoError(t, probe.Schedule(context.Background()))
	status := probe.Status()
	assert.True(t, status.Reachable)
	assert.Equal(t, "http://backend.test", status.BackendURL)
	assert.False(t, status.CheckedAt.IsZero())
	require.Len(t, c.Entries(), 1)

	checker.fail.Store(true)
	probe.check()
	status = probe.Status()
	assert.False(t, status.Reachable)
	assert.Equal(t, "connection refused", status.Error)

	checker.fail.Store(false)
	checker.healthy.Store(false)
	probe.check()
	assert.Equal(t, "backend reported unhealthy", probe.Status().Error)
}

func TestHealthProbe_RescheduleReplacesEntry(t *testing.T) {
	c := icron.New()
	probe := newHealthProbe(&fakeChecker{}, c, "@every 10s")
	require.NoError(t, probe.Reschedule("@every 10s"))
	require.NoError(t, probe.Reschedule("@every 30s"))

	require.Len(t, c.Entries(), 1)
	assert.Error(t, probe.Reschedule("not a cron"))
	require.Len(t, c.Entries(), 1)
}

func TestNewApp_ServesStateAndHealth(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" {
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(upstream.Close)

	tmp := t.TempDir()
	cfg := &config.Config{
		Backend: config.BackendConfig{URL: upstream.URL, RequestTimeout: time.Second, HealthCron: "@every 1h"},
		Storage: config.StorageConfig{DBPath: filepath.Join(tmp, "companion.db")},
		Progress: config.ProgressConfig{
			Grace:         time.Second,
			PollInterval:  time.Second,
			MaxPolls:      10,
			NotFoundLimit: 5,
			RetryLimit:    3,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, cfg, filepath.Join(tmp, "settings.json"))
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.probe.Schedule(ctx))

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Backend struct {
			Reachable bool `json:"reachable"`
		} `json:"backend"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.Backend.Reachable)

	rec = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var settings config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, upstream.URL, settings.BackendURL)
}

func TestApplyRuntimeSettings(t *testing.T) {
	tmp := t.TempDir()
	cfg := &config.Config{
		Backend:  config.BackendConfig{URL: "http://localhost:8000", HealthCron: "@every 1h"},
		Storage:  config.StorageConfig{DBPath: filepath.Join(tmp, "companion.db")},
		Progress: config.ProgressConfig{Grace: time.Second, PollInterval: time.Second},
	}
	a, err := newApp(context.Background(), cfg, "")
	require.NoError(t, err)
	defer a.Close()

	err = applyRuntimeSettings(a.client, a.probe, config.RuntimeSettings{
		BackendURL: "http://backend:9000",
		HealthCron: "@every 30s",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", a.client.BaseURL())

	err = applyRuntimeSettings(a.client, a.probe, config.RuntimeSettings{BackendURL: "nope"})
	assert.Error(t, err)
}
