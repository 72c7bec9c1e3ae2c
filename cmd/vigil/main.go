package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vigil/internal/alerts"
	"vigil/internal/api"
	"vigil/internal/bus"
	"vigil/internal/config"
	"vigil/internal/detect"
	"vigil/internal/logging"
	"vigil/internal/orchestrator"
	"vigil/internal/sink"
	"vigil/internal/source"
	"vigil/internal/state"
	"vigil/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	// optional .env next to the binary for DSNs and broker credentials
	_ = godotenv.Load()

	var mgr *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		mgr = m
	} else {
		mgr = config.NewManagerFromConfig(config.DefaultConfig())
	}
	cfg := mgr.Get()

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting vigil", "version", version, "streams", len(cfg.EnabledStreams()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	if cfg.Storage.Enabled {
		s, err := storage.NewStore(cfg.Storage)
		if err != nil {
			logger.Error("open storage", "driver", cfg.Storage.Driver, "err", err)
			os.Exit(1)
		}
		if err := s.Init(ctx); err != nil {
			logger.Error("init storage", "driver", cfg.Storage.Driver, "err", err)
			os.Exit(1)
		}
		store = s
		logger.Info("storage ready", "driver", cfg.Storage.Driver)
	}

	clientCfg := detect.ClientConfig{
		DetectorURL:  cfg.Detection.DetectorURL,
		AnalyzerURL:  cfg.Detection.AnalyzerURL,
		BehaviourURL: cfg.Detection.BehaviourURL,
		Timeout:      cfg.Detection.RequestTimeout,
	}
	detector, err := detect.NewHTTPDetector(ctx, clientCfg, logger)
	if err != nil {
		logger.Error("detector unavailable", "url", cfg.Detection.DetectorURL, "err", err)
		os.Exit(1)
	}
	var analyzer detect.Analyzer
	if cfg.Detection.CollectDemographics {
		a, err := detect.NewHTTPAnalyzer(ctx, clientCfg, logger)
		if err != nil {
			logger.Error("analyzer unavailable", "url", cfg.Detection.AnalyzerURL, "err", err)
			os.Exit(1)
		}
		analyzer = a
	}
	var pred detect.Predictor
	if len(cfg.Detection.BehaviourLabels) > 0 {
		p, err := detect.NewHTTPPredictor(ctx, clientCfg, logger)
		if err != nil {
			logger.Error("behaviour classifier unavailable", "url", cfg.Detection.BehaviourURL, "err", err)
			os.Exit(1)
		}
		pred = p
	}

	sinks := []sink.Sink{}
	if store != nil {
		sinks = append(sinks, sink.NewStoreSink(store, logger))
	}
	if kafkaSink := sink.NewKafkaSink(cfg.Sinks.Kafka, logger); kafkaSink != nil {
		sinks = append(sinks, kafkaSink)
	}
	mqttSink, err := sink.NewMQTTSink(cfg.Sinks.MQTT, logger)
	if err != nil {
		logger.Error("mqtt sink unavailable", "broker", cfg.Sinks.MQTT.BrokerURL, "err", err)
		os.Exit(1)
	}
	if mqttSink != nil {
		sinks = append(sinks, mqttSink)
	}
	recordSink := sink.NewMulti(sinks...)

	states := state.NewStore(cfg.EnabledStreams(), time.Now().UTC())
	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	frames := bus.New(cfg.Bus.Capacity)

	orch := orchestrator.New(cfg, frames, states, alertsStore, recordSink, detector, analyzer, pred, logger)
	orchDone := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(orchDone)
	}()

	sources := source.NewManager(cfg.EnabledStreams(), frames, cfg.Source, logger)
	sources.Start(ctx)
	logger.Info("sources started", "count", sources.Count())

	api.Start(ctx, mgr, states, alertsStore, logger, version)

	watchStop := make(chan struct{})
	go mgr.Watch(3*time.Second,
		func(next *config.Config) {
			orch.UpdateConfig(next)
			logger.Info("config reloaded", "path", mgr.Path())
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		watchStop,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	close(watchStop)

	// drain-then-stop: sources exit first, then closing the bus lets the
	// orchestrator finish the frames already enqueued
	sources.Stop()
	frames.Close()
	select {
	case <-orchDone:
	case <-time.After(30 * time.Second):
		logger.Warn("orchestrator did not drain in time")
	}

	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("close storage", "err", err)
		}
	}
	logger.Info("stopped")
}
