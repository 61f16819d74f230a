package server

import (
	"context"
	"errors"
	"sync"

	"FinSignal/internal/usecase"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/queue"
)

// Components are the long-running parts of the application. Nil entries
// are disabled by configuration.
type Components struct {
	Scanner    *usecase.Scanner
	Collector  *usecase.PriceCollector
	CandleSync *usecase.CandleSync
	Consumer   *pkgkafka.Consumer
	Queue      *queue.RedisQueue
	HTTP       *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	log  *applogger.Logger
	c    Components
	wg   sync.WaitGroup
	stop sync.Once
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, log: l, c: c}
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down within the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Stop(stopCtx)
}

// Start launches the components. Only a notification queue or HTTP server
// that cannot start is fatal; the price stream degrades to REST prices.
func (a *App) Start(ctx context.Context) error {
	if a.c.Queue != nil {
		if err := a.c.Queue.Start(); err != nil {
			return err
		}
		a.log.Info("notification queue started", applogger.String("queue", a.cfg.Notify.QueueName))
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(ctx); err != nil {
			a.log.Warn("price stream unavailable, using REST prices", applogger.Error(err))
		} else {
			a.log.Info("price stream started", applogger.String("url", a.cfg.Binance.Stream.URL))
		}
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.RequestTopic))
		}
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	if a.c.CandleSync != nil {
		a.goRun(ctx, "candle sync", a.c.CandleSync.Run)
	}
	if a.c.Scanner != nil && a.cfg.Scanner.Enabled {
		a.goRun(ctx, "scanner", a.c.Scanner.Run)
	}
	return nil
}

func (a *App) goRun(ctx context.Context, name string, fn func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error(name+" stopped", applogger.Error(err))
		}
	}()
}

// Stop gracefully stops all services. Calls after the first are no-ops.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	a.stop.Do(func() {
		a.log.Info("shutting down...")

		if a.c.HTTP != nil {
			if err := a.c.HTTP.Stop(ctx); err != nil {
				a.log.Error("http shutdown error", applogger.Error(err))
				errs = append(errs, err)
			}
		}
		if a.c.Consumer != nil {
			if err := a.c.Consumer.Stop(ctx); err != nil {
				a.log.Warn("kafka consumer stop error", applogger.Error(err))
				errs = append(errs, err)
			}
		}
		if a.c.Collector != nil {
			if err := a.c.Collector.Shutdown(ctx); err != nil {
				a.log.Warn("price stream stop error", applogger.Error(err))
				errs = append(errs, err)
			}
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.log.Warn("timeout waiting for loops", applogger.Error(ctx.Err()))
			errs = append(errs, ctx.Err())
		}

		// Queue last so deliveries enqueued by the final cycle are handled.
		if a.c.Queue != nil {
			if err := a.c.Queue.Stop(ctx); err != nil {
				a.log.Warn("queue stop error", applogger.Error(err))
				errs = append(errs, err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
