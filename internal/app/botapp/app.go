package botapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Moe-and-Friends/Amazake/internal/config"
	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	discordinfra "github.com/Moe-and-Friends/Amazake/internal/infra/discord"
	"github.com/Moe-and-Friends/Amazake/internal/jobs/unmute"
	redrepo "github.com/Moe-and-Friends/Amazake/internal/repo/redis"
	"github.com/Moe-and-Friends/Amazake/internal/services/debounce"
	"github.com/Moe-and-Friends/Amazake/internal/services/policy"
	"github.com/Moe-and-Friends/Amazake/internal/services/roll"
	"github.com/Moe-and-Friends/Amazake/internal/services/stats"
	"github.com/Moe-and-Friends/Amazake/internal/services/timeouts"
)

const handleTimeout = 5 * time.Minute

type gateway interface {
	Open(onMessage discordinfra.MessageHandler) error
	Ready() <-chan struct{}
	Close() error
}

type triggerHandler interface {
	HandleTrigger(ctx context.Context, msg model.Message) error
}

type sweeper interface {
	Run(ctx context.Context) (unmute.Summary, error)
}

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	redis     *goredis.Client
	gateway   gateway
	triggers  triggerHandler
	unmuteJob sweeper
	reporter  *stats.Reporter

	ready atomic.Bool

	handlersMu sync.Mutex
	stopped    bool
	handlers   sync.WaitGroup
	baseCtx    context.Context
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	patterns, err := cfg.Roulette.CompilePatterns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}
	intervals, err := cfg.Roulette.TimeoutIntervals()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}

	redisClient, err := redrepo.NewClient(ctx, redrepo.Options{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis for bot app: %w", err)
	}

	discordClient, err := discordinfra.NewClient(cfg.Discord.Token, logger.Named("discord"))
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init discord client: %w", err)
	}

	ledger := redrepo.NewTimeoutRepo(redisClient, cfg.Redis.KeyPrefix)
	reporter := stats.NewReporter(cfg.Roulette.WebhookURLs, cfg.Roulette.WebhookTimeout, logger.Named("stats"))

	triggers := timeouts.NewService(timeouts.Config{
		Channels:      cfg.ACL.Channels,
		Patterns:      patterns,
		Intervals:     intervals,
		Messages:      cfg.Messages.Model(),
		TimeoutRoles:  cfg.Roulette.TimeoutRoles,
		ResponseDelay: cfg.Roulette.ResponseDelay(),
	}, timeouts.Deps{
		Platform:  discordClient,
		Ledger:    ledger,
		Roller:    roll.NewService(),
		Debouncer: debounce.NewUserFilter(),
		Reporter:  reporter,
		Policy:    policy.NewService(cfg.ACL.Protected, cfg.ACL.Moderator, cfg.ACL.Administrator),
	}, logger.Named("roll"))

	unmuteJob := unmute.NewJob(ledger, discordClient, debounce.NewSweepFilter(), unmute.Config{
		TimeoutRoles: cfg.Roulette.TimeoutRoles,
		Lookahead:    cfg.Unmute.Lookahead,
		DropDeparted: cfg.Unmute.DropDeparted,
	}, logger.Named("unmute"))

	return &App{
		cfg:       cfg,
		logger:    logger,
		redis:     redisClient,
		gateway:   discordClient,
		triggers:  triggers,
		unmuteJob: unmuteJob,
		reporter:  reporter,
	}, nil
}

// Run connects to the gateway and blocks until ctx is done. On return no sweep or
// message handler is still running.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.baseCtx = context.WithoutCancel(runCtx)
	if err := a.gateway.Open(a.handleMessage); err != nil {
		return err
	}
	a.logger.Info("bot app started")

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- a.runUnmuteLoop(runCtx)
	}()

	if a.cfg.HTTP.Addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- a.serveOps(runCtx)
		}()
	}

	var runErr error
	for runErr == nil {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			runErr = err
		}
	}

	cancel()
	a.stopHandlers()
	wg.Wait()
	a.logger.Info("bot app stopped")

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return nil
	}
	return runErr
}

func (a *App) runUnmuteLoop(ctx context.Context) error {
	if a.unmuteJob == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return nil
	case <-a.gateway.Ready():
	}
	a.ready.Store(true)

	interval := a.cfg.Unmute.Rate()
	if interval <= 0 {
		interval = time.Minute
	}

	a.sweep(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.sweep(ctx, interval)
		}
	}
}

// sweep runs detached from shutdown so a sweep that has started always finishes.
func (a *App) sweep(ctx context.Context, budget time.Duration) {
	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	if _, err := a.unmuteJob.Run(sweepCtx); err != nil {
		a.logger.Error("unmute sweep failed", zap.Error(err))
	}
}

func (a *App) handleMessage(msg model.Message) {
	a.handlersMu.Lock()
	if a.stopped {
		a.handlersMu.Unlock()
		return
	}
	a.handlers.Add(1)
	a.handlersMu.Unlock()
	defer a.handlers.Done()

	base := a.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, handleTimeout)
	defer cancel()

	if err := a.triggers.HandleTrigger(ctx, msg); err != nil {
		a.logger.Error("handle trigger", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (a *App) stopHandlers() {
	a.handlersMu.Lock()
	a.stopped = true
	a.handlersMu.Unlock()

	a.handlers.Wait()
}

func (a *App) Close() {
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			a.logger.Warn("close discord gateway", zap.Error(err))
		}
	}
	a.reporter.Wait()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
