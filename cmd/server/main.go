package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mine-monitor/internal/aggregator"
	"mine-monitor/internal/alarm"
	"mine-monitor/internal/analysis"
	"mine-monitor/internal/api"
	"mine-monitor/internal/database"
	"mine-monitor/internal/kafka"
	"mine-monitor/internal/mqtt"
	"mine-monitor/internal/notify"
	"mine-monitor/internal/services"
	"mine-monitor/internal/source"
	"mine-monitor/pkg/config"
)

func main() {
	mock := flag.Bool("mock", false, "use the simulated source regardless of SOURCE_TYPE")
	port := flag.Int("port", 0, "HTTP port, overrides HTTP_ADDR")
	baudRate := flag.Int("baudrate", 0, "serial baud rate, overrides SERIAL_BAUD_RATE")
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	log.Println("Starting Mine Safety Monitor...")

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *mock {
		cfg.SourceType = config.SourceSimulated
	}

	if *port > 0 {
		cfg.HTTPAddr = fmt.Sprintf(":%d", *port)
	}

	if *baudRate > 0 {
		cfg.SerialBaudRate = *baudRate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === Alarm engine ===
	rules, err := alarm.RulesFromThresholds(cfg.Thresholds)
	if err != nil {
		log.Fatalf("Invalid thresholds: %v", err)
	}

	engine, err := alarm.NewEngine(rules, alarm.Config{
		MinInterval:     cfg.AlarmMinInterval,
		MaxCountPerHour: cfg.AlarmMaxCountPerHour,
		HistorySize:     cfg.AlarmHistorySize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize alarm engine: %v", err)
	}

	// === Persistence ===
	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.StoreType, err)
	}

	writer := database.NewWriter(store, database.WriterConfig{
		QueueSize: cfg.PersistQueueSize,
		OpTimeout: cfg.PersistTimeout,
	})

	// === Ingestion ===
	buffer, err := aggregator.NewRingBuffer(cfg.BufferCapacity, time.Now)
	if err != nil {
		log.Fatalf("Failed to initialize buffer: %v", err)
	}

	collector := aggregator.NewCollector(buffer, aggregator.NewBus(), writer)

	src := newSource(cfg)

	// === Analysis ===
	analyzer, err := newAnalyzer(cfg, rules)
	if err != nil {
		log.Fatalf("Failed to initialize analyzer: %v", err)
	}

	limiter, err := analysis.NewLimiter(cfg.RateLimitMaxCalls, cfg.RateLimitWindow, time.Now)
	if err != nil {
		log.Fatalf("Invalid analysis rate limit: %v", err)
	}

	dispatcher, err := analysis.NewDispatcher(analyzer, engine, analysis.DispatcherConfig{
		MinGap:      cfg.AnalysisInterval,
		CallTimeout: cfg.AnalysisTimeout,
		Limiter:     limiter,
	})
	if err != nil {
		log.Fatalf("Failed to initialize analysis dispatcher: %v", err)
	}

	// === Notifications ===
	hub := api.NewHub()
	notifier := notify.NewDispatcher(notify.Config{}, hub)

	cleanup, err := addNotifiers(cfg, notifier)
	if err != nil {
		log.Fatalf("Failed to initialize notifiers: %v", err)
	}
	defer cleanup()

	// === Monitoring service ===
	history, _ := store.(database.ReadingHistory)

	svc, err := services.NewMonitoringService(services.Dependencies{
		Source:      src,
		Collector:   collector,
		Engine:      engine,
		Dispatcher:  dispatcher,
		Writer:      writer,
		History:     history,
		Notifier:    notifier,
		Broadcaster: hub,
	}, services.Config{
		AnalysisHistory: cfg.AnalysisHistory,
	})
	if err != nil {
		log.Fatalf("Failed to initialize monitoring service: %v", err)
	}

	server := api.NewServer(cfg.HTTPAddr, svc, hub)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(server.ListenAndServe)

	// the API stays up without a source so operators can see connection_status
	if err := svc.Start(gctx); err != nil {
		log.Printf("Monitoring service started without a source: %v", err)
	}

	g.Go(func() error {
		<-gctx.Done()

		log.Println("Shutdown signal received, stopping services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return errors.Join(svc.Stop(shutdownCtx), server.Shutdown(shutdownCtx))
	})

	// === Log startup info ===
	log.Println("=== Mine Safety Monitor is running ===")
	log.Printf("Source:      %s", src.Name())
	log.Printf("Store:       %s", cfg.StoreType)
	log.Printf("Analyzer:    %T (every %v, %d calls per %v)",
		analyzer, cfg.AnalysisInterval, cfg.RateLimitMaxCalls, cfg.RateLimitWindow)
	log.Printf("Notifiers:   %v", notifier.Notifiers())
	log.Printf("API:         %s", cfg.HTTPAddr)
	for _, p := range []string{"pressure", "temperature", "vibration"} {
		t := cfg.Thresholds[p]
		log.Printf("  - %-12s normal %v warning %v danger %v", p, t.Normal, t.Warning, t.Danger)
	}
	log.Println("Press Ctrl+C to exit...")

	if err := g.Wait(); err != nil {
		log.Printf("Shutdown finished with errors: %v", err)
		return
	}

	log.Println("Shutdown complete. Goodbye!")
}

func newStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.StoreType {
	case config.StoreSQLite:
		store, err := database.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(cfg.Thresholds); err == nil {
			if prev, ok, err := store.ConfigValue(ctx, "thresholds"); err == nil && ok && prev != string(raw) {
				log.Printf("Alarm thresholds changed since last run: %s -> %s", prev, raw)
			}

			if err := store.SetConfigValue(ctx, "thresholds", string(raw), "alarm thresholds in effect"); err != nil {
				log.Printf("Failed to record thresholds: %v", err)
			}
		}

		return store, nil

	case config.StoreClickHouse:
		return database.NewClickHouseStore(ctx, database.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		})

	default:
		log.Println("Persistence disabled")
		return database.NopStore{}, nil
	}
}

func newSource(cfg *config.Config) source.Source {
	switch cfg.SourceType {
	case config.SourceSerial:
		return source.NewSerial(source.SerialConfig{
			Port:        cfg.SerialPort,
			BaudRate:    cfg.SerialBaudRate,
			ReadTimeout: cfg.SerialReadTimeout,
		})

	case config.SourceMQTT:
		return mqtt.NewSource(mqtt.SourceConfig{
			Client: mqtt.ClientConfig{
				Broker:       cfg.MQTTBroker,
				ClientID:     cfg.MQTTClientID,
				Username:     cfg.MQTTUsername,
				Password:     cfg.MQTTPassword,
				UniqueSuffix: true,
			},
			ReadingTopic: cfg.MQTTTopicReadings,
		})

	case config.SourceKafka:
		return kafka.NewSource(kafka.Config{
			Brokers: kafka.ParseBrokers(cfg.KafkaBrokers),
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})

	default:
		return source.NewSimulated(source.SimulatedConfig{
			Interval:  cfg.SimInterval,
			Jitter:    cfg.SimJitter,
			Seed:      cfg.SimSeed,
			SpikeProb: 0.05,
		})
	}
}

func newAnalyzer(cfg *config.Config, rules []alarm.Rule) (analysis.Analyzer, error) {
	if cfg.DeepSeekAPIKey == "" {
		log.Println("DEEPSEEK_API_KEY not set, using local statistical analysis")
		return analysis.NewLocalAnalyzer(analysis.LocalAnalyzerConfig{Rules: rules})
	}

	return analysis.NewDeepSeekClient(analysis.DeepSeekConfig{
		URL:         cfg.DeepSeekURL,
		APIKey:      cfg.DeepSeekAPIKey,
		Model:       cfg.DeepSeekModel,
		MaxTokens:   cfg.DeepSeekMaxTokens,
		Temperature: cfg.DeepSeekTemperature,
		Timeout:     cfg.AnalysisTimeout,
	})
}

// addNotifiers registers the optional outbound channels and returns a
// function that closes their connections
func addNotifiers(cfg *config.Config, d *notify.Dispatcher) (func(), error) {
	var closers []func()

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MQTTNotifyEnabled {
		client, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:       cfg.MQTTBroker,
			ClientID:     cfg.MQTTClientID + "-notify",
			Username:     cfg.MQTTUsername,
			Password:     cfg.MQTTPassword,
			UniqueSuffix: true,
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("mqtt: %w", err)
		}

		closers = append(closers, client.Close)
		d.Add(mqtt.NewPublisher(client.GetNativeClient(), mqtt.PublisherConfig{
			AlarmTopic:    cfg.MQTTTopicAlarms,
			AnalysisTopic: cfg.MQTTTopicAnalysis,
		}))
	}

	if cfg.NATSURL != "" {
		n, err := notify.NewNATSNotifier(notify.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubject,
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("nats: %w", err)
		}

		closers = append(closers, n.Close)
		d.Add(n)
	}

	if cfg.WebhookURL != "" {
		w, err := notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:      cfg.WebhookURL,
			Cooldown: cfg.WebhookCooldown,
			Rate:     cfg.WebhookRate,
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("webhook: %w", err)
		}

		d.Add(w)
	}

	return cleanup, nil
}
