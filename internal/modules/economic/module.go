package economic

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sentinel_bot/internal/modules/config"
	"sentinel_bot/internal/modules/economic/service"
	"sentinel_bot/internal/modules/economic/service/pg"
	"sentinel_bot/pkg/db"
)

type journalParams struct {
	fx.In

	TxManager *db.PgTxManager `optional:"true"`
}

// NewEventSource picks the calendar feed by economic.source.kind.
func NewEventSource(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) service.EventSource {
	src := cfg.Economic.Source
	switch src.Kind {
	case config.SourceHTTP:
		return service.NewHTTPSource(src.URL, src.TimeLayout, src.Timeout)
	case config.SourceStream:
		s := service.NewStreamSource(src.URL, src.TimeLayout, log)
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				var ctx context.Context
				ctx, cancel = context.WithCancel(context.Background())
				go s.Run(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
		return s
	default:
		return service.NewFileSource(src.Path, src.TimeLayout)
	}
}

func NewJournal(lc fx.Lifecycle, p journalParams, log *zap.Logger) service.Journal {
	if p.TxManager == nil {
		log.Info("[ECON] delivery journal disabled")
		return nil
	}
	j := pg.NewJournal(p.TxManager)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return j.EnsureSchema(ctx)
		},
	})
	return j
}

func NewManager(
	cfg *config.Config,
	source service.EventSource,
	journal service.Journal,
	reg *prometheus.Registry,
	log *zap.Logger,
) *service.Manager {
	e := cfg.Economic
	return service.NewManager(source, log, service.NewMetrics(reg), journal, service.Options{
		Interval:        e.Interval,
		Backoff:         e.Backoff,
		Retention:       e.Retention,
		ReferenceSymbol: e.ReferenceSymbol,
		MaxConcurrency:  e.MaxConcurrency,
		CallbackTimeout: e.CallbackTimeout,
	})
}

func Module() fx.Option {
	return fx.Module("economic",
		fx.Provide(
			NewEventSource,
			NewJournal,
			NewManager,
		),
		fx.Invoke(func(lc fx.Lifecycle, m *service.Manager) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return m.Shutdown(ctx)
				},
			})
		}),
	)
}
