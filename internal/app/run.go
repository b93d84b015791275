package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sumitkushwahji/time-traceability-backend/internal/config"
	"github.com/sumitkushwahji/time-traceability-backend/internal/db"
	"github.com/sumitkushwahji/time-traceability-backend/internal/httpapi"
	"github.com/sumitkushwahji/time-traceability-backend/internal/metrics"
	"github.com/sumitkushwahji/time-traceability-backend/internal/migrate"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest"
	ingestservice "github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/service"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/refresh"
	"github.com/sumitkushwahji/time-traceability-backend/internal/mqtt"
	"github.com/sumitkushwahji/time-traceability-backend/internal/retry"
	"github.com/sumitkushwahji/time-traceability-backend/internal/scheduler"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"dataRoot", cfg.DataRoot,
		"monitorInterval", cfg.MonitorInterval,
		"missingWindowDays", cfg.MissingWindowDays,
		"refreshEnabled", cfg.RefreshEnabled,
		"refreshInterval", cfg.RefreshInterval,
		"refreshViews", cfg.RefreshViews,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
	)

	dbConn, dialect, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(dbConn, dialect); err != nil {
		return err
	}

	var ok int
	if err := dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	logger.Info("database connection successful", "dialect", dialect.String())

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}

	var publisher ingestservice.EventPublisher = mqtt.Nop{}
	var mqttPublisher *mqtt.Publisher
	if cfg.MQTTBroker != "" {
		mqttPublisher = mqtt.NewPublisher(cfg, logger)
		// Startup must not block on a broker that is down.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = mqttPublisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing, paho keeps retrying)", "error", err)
		}
		publisher = mqttPublisher
	}

	mux := httpapi.NewMux(dbConn, collector.Handler())
	monitor := ingest.RegisterFeature(mux, dbConn, dialect, ingestservice.Options{
		Root:              cfg.DataRoot,
		MissingWindowDays: cfg.MissingWindowDays,
		Retry: retry.Policy{
			MaxRetries:      cfg.UpsertMaxRetries,
			InitialInterval: cfg.UpsertBaseDelay,
			MaxInterval:     cfg.UpsertMaxDelay,
			Jitter:          0.2,
		},
		Metrics:   collector,
		Publisher: publisher,
		Logger:    logger.With("component", "monitor"),
	})
	coordinator := refresh.RegisterFeature(mux, dbConn, dialect, cfg.RefreshViews, collector, logger.With("component", "refresh"))
	coordinator.CheckViews(ctx)

	sched := scheduler.New(logger.With("component", "scheduler"))
	if err := sched.Every("monitor", cfg.MonitorInterval, scheduler.OverlapSkip, func(ctx context.Context) {
		monitor.RunPass(ctx)
	}); err != nil {
		return err
	}
	if cfg.RefreshEnabled {
		if err := sched.Every("refresh", cfg.RefreshInterval, scheduler.OverlapAllow, func(ctx context.Context) {
			coordinator.RunCycle(ctx)
		}); err != nil {
			return err
		}
	} else {
		logger.Info("periodic refresh disabled; manual trigger still available")
	}
	sched.Start()

	srv := httpapi.NewServer(cfg, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		sched.Stop()
		coordinator.Wait()
		if mqttPublisher != nil {
			mqttPublisher.Disconnect()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("scheduler stopping")
	sched.Stop()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("waiting for refresh cycles")
	coordinator.Wait()

	if mqttPublisher != nil {
		logger.Info("mqtt disconnecting")
		mqttPublisher.Disconnect()
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
