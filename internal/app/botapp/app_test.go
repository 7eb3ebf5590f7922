package botapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Moe-and-Friends/Amazake/internal/config"
	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	discordinfra "github.com/Moe-and-Friends/Amazake/internal/infra/discord"
	"github.com/Moe-and-Friends/Amazake/internal/jobs/unmute"
)

func TestRunStartsSweepOnlyAfterGatewayReady(t *testing.T) {
	gw := newFakeGateway()
	job := &fakeSweeper{}
	app := newTestApp(gw, job, &fakeTriggers{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, app)

	time.Sleep(50 * time.Millisecond)
	if got := job.runs.Load(); got != 0 {
		t.Fatalf("sweep ran %d times before gateway was ready", got)
	}

	close(gw.ready)
	waitFor(t, func() bool { return job.runs.Load() == 1 })
	if !app.ready.Load() {
		t.Fatalf("app should report ready once the gateway is ready")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunWaitsForInFlightSweep(t *testing.T) {
	gw := newFakeGateway()
	close(gw.ready)

	release := make(chan struct{})
	job := &fakeSweeper{block: release}
	app := newTestApp(gw, job, &fakeTriggers{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, app)

	waitFor(t, func() bool { return job.started.Load() == 1 })
	cancel()

	select {
	case <-done:
		t.Fatalf("run returned while a sweep was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if job.cancelledMidSweep.Load() {
		t.Fatalf("sweep context should not be cancelled by shutdown")
	}
	if job.runs.Load() != 1 {
		t.Fatalf("expected the in-flight sweep to complete")
	}
}

func TestRunWaitsForMessageHandlersAndDropsLateMessages(t *testing.T) {
	gw := newFakeGateway()
	release := make(chan struct{})
	triggers := &fakeTriggers{block: release}
	app := newTestApp(gw, nil, triggers)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, app)

	waitFor(t, func() bool { return gw.handler() != nil })
	go gw.handler()(model.Message{ID: "m1"})
	waitFor(t, func() bool { return triggers.started.Load() == 1 })

	cancel()
	select {
	case <-done:
		t.Fatalf("run returned while a message handler was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if triggers.cancelled.Load() {
		t.Fatalf("handler context should survive shutdown")
	}

	gw.handler()(model.Message{ID: "late"})
	if got := triggers.started.Load(); got != 1 {
		t.Fatalf("messages after shutdown should be dropped, got %d handled", got)
	}
}

func TestRoutesReportHealthAndMetrics(t *testing.T) {
	app := newTestApp(newFakeGateway(), nil, &fakeTriggers{})
	server := httptest.NewServer(app.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", resp.StatusCode)
	}

	app.ready.Store(true)
	resp, err = http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status: %d", resp.StatusCode)
	}
}

func newTestApp(gw *fakeGateway, job sweeper, triggers triggerHandler) *App {
	cfg := config.Default()
	cfg.HTTP.Addr = ""

	app := &App{
		cfg:      cfg,
		logger:   zap.NewNop(),
		gateway:  gw,
		triggers: triggers,
	}
	if job != nil {
		app.unmuteJob = job
	}
	return app
}

func runAsync(ctx context.Context, app *App) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()
	return done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type fakeGateway struct {
	mu        sync.Mutex
	ready     chan struct{}
	onMessage discordinfra.MessageHandler
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{ready: make(chan struct{})}
}

func (g *fakeGateway) Open(onMessage discordinfra.MessageHandler) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onMessage = onMessage
	return nil
}

func (g *fakeGateway) handler() discordinfra.MessageHandler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.onMessage
}

func (g *fakeGateway) Ready() <-chan struct{} { return g.ready }

func (g *fakeGateway) Close() error { return nil }

type fakeSweeper struct {
	block             chan struct{}
	started           atomic.Int32
	runs              atomic.Int32
	cancelledMidSweep atomic.Bool
}

func (s *fakeSweeper) Run(ctx context.Context) (unmute.Summary, error) {
	s.started.Add(1)
	if s.block != nil {
		<-s.block
	}
	if ctx.Err() != nil {
		s.cancelledMidSweep.Store(true)
	}
	s.runs.Add(1)
	return unmute.Summary{}, nil
}

type fakeTriggers struct {
	block     chan struct{}
	started   atomic.Int32
	cancelled atomic.Bool
}

func (f *fakeTriggers) HandleTrigger(ctx context.Context, _ model.Message) error {
	f.started.Add(1)
	if f.block != nil {
		<-f.block
	}
	if ctx.Err() != nil {
		f.cancelled.Store(true)
	}
	return nil
}
