package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/basketbot/internal/calibrate"
	"github.com/alanyoungcy/basketbot/internal/crypto"
	"github.com/alanyoungcy/basketbot/internal/platform/gateway"
)

// Calibrate samples the live books and returns the observed price ranges per
// instrument. It needs only the gateway; no backend is connected.
func (a *App) Calibrate(ctx context.Context) (map[string]calibrate.Range, error) {
	ex := a.cfg.Exchange
	if ex.BaseURL == "" {
		return nil, fmt.Errorf("app: calibrate requires exchange.base_url")
	}
	var auth *crypto.HMACAuth
	if ex.ApiKey != "" {
		auth = &crypto.HMACAuth{Key: ex.ApiKey, Secret: ex.ApiSecret}
	}
	client := gateway.NewClient(ex.BaseURL, auth, ex.RequestTimeout.Duration)

	c := a.cfg.Calibrate
	a.logger.InfoContext(ctx, "calibrating",
		slog.Int("samples", c.Samples),
		slog.Duration("interval", c.Interval.Duration),
	)
	sampler := calibrate.NewSampler(client, a.cfg.Instruments.All(), calibrate.Options{
		Samples:  c.Samples,
		Interval: c.Interval.Duration,
		LowerPct: c.LowerPct,
		UpperPct: c.UpperPct,
	}, a.logger)
	return sampler.Run(ctx)
}
