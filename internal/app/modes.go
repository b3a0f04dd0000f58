package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/basketbot/internal/crypto"
	"github.com/alanyoungcy/basketbot/internal/executor"
	"github.com/alanyoungcy/basketbot/internal/ledger"
	"github.com/alanyoungcy/basketbot/internal/pipeline"
	"github.com/alanyoungcy/basketbot/internal/platform/gateway"
	"github.com/alanyoungcy/basketbot/internal/platform/paper"
	"github.com/alanyoungcy/basketbot/internal/server"
	"github.com/alanyoungcy/basketbot/internal/server/handler"
	"github.com/alanyoungcy/basketbot/internal/server/ws"
	"github.com/alanyoungcy/basketbot/internal/service"
	"github.com/alanyoungcy/basketbot/internal/strategy"
)

// statusInterval is how often the engine status is published on the bus.
const statusInterval = time.Second

// Venue is everything the engine needs from an exchange.
type Venue interface {
	service.BookSource
	service.PositionSource
	executor.OrderPlacer
	strategy.OrderCanceller
}

// TradeMode runs the full trading loop against the live gateway ("trade") or
// the in-memory exchange ("paper").
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, mode string) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.String("mode", mode))
	venue, feed, err := a.buildVenue(mode, deps)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, venue, feed, mode, true)
}

// MonitorMode refreshes books and serves the API without sending orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	venue, feed, err := a.buildVenue("monitor", deps)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, venue, feed, "monitor", false)
}

// buildVenue picks the exchange for mode. Paper mode reads live books from
// the gateway when one is configured and fills locally.
func (a *App) buildVenue(mode string, deps *Dependencies) (Venue, *gateway.Feed, error) {
	ex := a.cfg.Exchange
	instruments := a.cfg.Instruments.All()

	var client *gateway.Client
	var feed *gateway.Feed
	if ex.BaseURL != "" {
		var auth *crypto.HMACAuth
		if ex.ApiKey != "" {
			auth = &crypto.HMACAuth{Key: ex.ApiKey, Secret: ex.ApiSecret}
		}
		client = gateway.NewClient(ex.BaseURL, auth, ex.RequestTimeout.Duration)
		if ex.WsURL != "" {
			feed = gateway.NewFeed(ex.WsURL, instruments, 0, a.logger)
			client.WithFeed(feed)
		}
		deps.HealthChecks["exchange"] = client.Ping
	}

	switch mode {
	case "paper":
		var upstream paper.BookSource
		if client != nil {
			upstream = client
		}
		return paper.New(upstream, ex.PaperPositions, a.cfg.Engine.MaxPosition, a.logger), feed, nil
	default:
		if client == nil {
			return nil, nil, fmt.Errorf("app: mode %s requires exchange.base_url", mode)
		}
		return client, feed, nil
	}
}

// runEngine assembles the trading stack on venue and runs it together with
// the journal, notifier, feed, archiver and API until ctx ends.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, venue Venue, feed *gateway.Feed, mode string, trading bool) error {
	cfg := a.cfg
	instruments := cfg.Instruments.All()

	g, ctx := errgroup.WithContext(ctx)

	journal := service.NewTradeService(deps.TradeStore, deps.SignalBus, deps.AuditStore, a.logger)
	g.Go(func() error { return journal.Run(ctx) })

	if deps.Notifier.Enabled() {
		g.Go(func() error { return deps.Notifier.Run(ctx) })
	}

	if feed != nil {
		g.Go(func() error { return feed.Run(ctx) })
	}

	lots := ledger.New()
	exec := executor.NewExecutor(venue, lots, journal, a.logger).WithAlerter(deps.Notifier)
	if deps.RateLimiter != nil && cfg.Engine.OrderRateLimit > 0 {
		exec.WithRateLimiter(deps.RateLimiter, cfg.Engine.OrderRateLimit, cfg.Engine.OrderRateWindow.Duration)
	}

	market := service.NewMarketView(venue, instruments, a.logger).WithMirror(deps.BookCache, deps.SignalBus)
	positions := service.NewPositionService(venue, instruments)
	guard := service.NewBasketGuard(service.BasketGuardConfig{
		HardLimit:     cfg.Engine.BasketHardLimit,
		SoftLimit:     cfg.Engine.BasketSoftLimit,
		Persistence:   cfg.Engine.BreachPersistence.Duration,
		GridThreshold: cfg.Engine.GridThreshold,
		PressureRatio: cfg.Engine.PressureRatio,
	}, positions, market, exec, a.logger).WithAlerter(deps.Notifier)
	if deps.SignalBus != nil {
		guard.WithBus(deps.SignalBus)
	}

	registry := strategy.NewStandardRegistry(strategy.StandardConfig{
		BasketUS:        cfg.Instruments.BasketUS,
		BasketEU:        cfg.Instruments.BasketEU,
		Constituents:    cfg.Instruments.Constituents,
		ArbThreshold:    cfg.Engine.ArbThreshold,
		BasketThreshold: cfg.Engine.BasketThreshold,
		HedgeLotCap:     cfg.Engine.HedgeLotCap,
		BasketRatio:     cfg.Engine.BasketRatio,
	})
	cycle := &strategy.Cycle{
		Market: market,
		Ledger: lots,
		Risk:   service.NewRiskService(venue, cfg.Engine.MaxPosition, a.logger),
		Guard:  guard,
		Exec:   exec,
		Logger: a.logger,
	}
	engine := strategy.NewEngine(registry, cycle, positions, venue, journal, strategy.EngineOptions{
		Mode:           mode,
		Interval:       cfg.Engine.TickInterval.Duration,
		FlattenOnStart: cfg.Engine.FlattenOnStart,
		Trading:        trading,
	}, a.logger).WithOrderStats(exec).WithAlerter(deps.Notifier)
	if deps.SignalBus != nil {
		engine.WithBus(deps.SignalBus)
		g.Go(func() error { return engine.PublishStatus(ctx, statusInterval) })
	}
	g.Go(func() error { return engine.Run(ctx) })

	if deps.Archiver != nil {
		g.Go(func() error {
			return pipeline.NewArchiver(deps.Archiver, cfg.S3.RetentionDays, a.logger).
				RunEvery(ctx, cfg.S3.ArchiveInterval.Duration)
		})
	}

	if cfg.Server.Enabled {
		srv, hub := a.buildServer(deps, engine, exec, lots, journal, market)
		if hub != nil {
			g.Go(func() error { return hub.Run(ctx) })
		}
		g.Go(func() error { return srv.Run(ctx) })
	}

	return g.Wait()
}

func (a *App) buildServer(
	deps *Dependencies,
	engine *strategy.Engine,
	exec *executor.Executor,
	lots *ledger.Ledger,
	journal *service.TradeService,
	market *service.MarketView,
) (*server.Server, *ws.Hub) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, engine, nil, a.logger)
	}
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status: handler.NewStatusHandler(engine, engine.Registry(), exec),
		Ledger: handler.NewLedgerHandler(lots),
		Trades: handler.NewTradeHandler(journal, a.logger),
		Books:  handler.NewBookHandler(market),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		Limiter:     deps.RateLimiter,
	}, handlers, hub, a.logger)
	return srv, hub
}
