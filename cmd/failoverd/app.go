package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/config"
	"github.com/FairForge/globalfailover/internal/controlplane"
	"github.com/FairForge/globalfailover/internal/database"
	"github.com/FairForge/globalfailover/internal/events"
	"github.com/FairForge/globalfailover/internal/failover"
	"github.com/FairForge/globalfailover/internal/logging"
	"github.com/FairForge/globalfailover/internal/metrics"
	"github.com/FairForge/globalfailover/internal/tracing"
)

const tracerName = "github.com/FairForge/globalfailover"

// app holds the wired components of one process
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	orch    *failover.Orchestrator
	history database.Store
	metrics *metrics.Metrics
	ready   func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	plane, err := a.controlPlane(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.openHistory(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	fanout, err := a.publishers()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	tcfg := cfg.Tracing
	tcfg.ServiceVersion = version
	tp, err := tracing.NewProvider(ctx, tcfg, tracing.WithLogger(logger))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, tp.Shutdown)

	a.metrics = metrics.New()
	a.orch = failover.New(plane,
		failover.WithPolicy(cfg.Failover.Policy()),
		failover.WithLogger(logger),
		failover.WithTracer(tp.Tracer(tracerName)),
		failover.WithObserver(database.NewRecorder(a.history, logger), fanout, a.metrics),
		failover.WithHistory(a.history),
		failover.WithEventBuffer(cfg.Events.BufferSize),
	)
	a.closers = append(a.closers, a.orch.Close)
	return a, nil
}

func (a *app) controlPlane(ctx context.Context) (controlplane.ControlPlane, error) {
	var plane controlplane.ControlPlane

	switch a.cfg.AWS.ControlPlane {
	case config.ControlPlaneMemory:
		m := controlplane.NewMemory()
		for _, sc := range a.cfg.AWS.SimulatedClusters {
			m.Add(sc.Descriptor())
		}
		a.logger.Info("using memory control plane", zap.Int("clusters", len(a.cfg.AWS.SimulatedClusters)))
		plane = m
	default:
		rdsPlane, err := controlplane.NewRDSControlPlane(ctx, a.cfg.AWS.RDS(), a.logger)
		if err != nil {
			return nil, err
		}
		a.logger.Info("using rds control plane",
			zap.String("region", a.cfg.AWS.Region),
			zap.String("mode", a.cfg.AWS.Mode))
		plane = rdsPlane
	}

	if rl := a.cfg.RateLimit; rl.RequestsPerSecond > 0 {
		plane = controlplane.NewRateLimited(plane, rl.RequestsPerSecond, rl.Burst)
	}
	return plane, nil
}

func (a *app) openHistory(ctx context.Context) error {
	if a.cfg.Database.Backend != config.HistoryPostgres {
		a.history = database.NewMemoryHistory()
		return nil
	}

	pg, err := database.NewPostgres(a.cfg.Database.Config)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return pg.Close() })

	if a.cfg.Database.CreateSchema {
		if err := pg.CreateSchema(ctx); err != nil {
			return err
		}
	}
	a.history = pg
	a.ready = pg.Ping
	a.logger.Info("using postgres failover history")
	return nil
}

func (a *app) publishers() (*events.Fanout, error) {
	el := events.NewEventLogger(a.logger.Named("events"), a.cfg.Events.BufferSize)
	a.closers = append(a.closers, func(context.Context) error {
		el.Close()
		return nil
	})
	pubs := []events.Publisher{el}

	if a.cfg.Events.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(a.cfg.Events.Kafka.KafkaConfig)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return kp.Close() })
		pubs = append(pubs, kp)
		a.logger.Info("publishing failover events to kafka",
			zap.Strings("brokers", a.cfg.Events.Kafka.Brokers),
			zap.String("topic", a.cfg.Events.Kafka.Topic))
	}
	return events.NewFanout(a.logger, pubs...), nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
