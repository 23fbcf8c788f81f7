package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fraudmesh/fraudmesh/internal/api"
	"github.com/fraudmesh/fraudmesh/internal/billing"
	"github.com/fraudmesh/fraudmesh/internal/cache"
	"github.com/fraudmesh/fraudmesh/internal/config"
	"github.com/fraudmesh/fraudmesh/internal/db"
	"github.com/fraudmesh/fraudmesh/internal/events"
	"github.com/fraudmesh/fraudmesh/internal/graph"
	"github.com/fraudmesh/fraudmesh/internal/health"
	"github.com/fraudmesh/fraudmesh/internal/knowledgebase"
	"github.com/fraudmesh/fraudmesh/internal/metrics"
	"github.com/fraudmesh/fraudmesh/internal/risk"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path (optional; env vars and defaults apply without one)")
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}
	if *showVersion {
		fmt.Printf("fraudmesh version %s (commit %s)\n", version, commit)
		return
	}

	log.Printf("starting fraudmesh v%s (commit %s)", version, commit)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := graph.NewStore()

	checker := health.NewChecker(200 * time.Millisecond)
	registry := prometheus.NewRegistry()
	promMetrics := metrics.NewPrometheus(registry)

	var riskCache *cache.RiskCache
	if cfg.Redis.URL != "" {
		redisCache := cache.NewRedisCache(cfg.Redis.URL, "", 0, "fraudmesh")
		riskCache = cache.NewRiskCache(redisCache)
		checker.Register("redis", redisCache)
	}

	var store *db.Store
	if cfg.Postgres.URL != "" {
		store, err = db.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer store.Close()
		checker.Register("postgres", store)
	}

	var publisher *events.KafkaPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.BootstrapServers) > 0 {
		publisher = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Kafka.BootstrapServers,
		})
		defer publisher.Close()
		checker.Register("kafka", publisher)
	}

	var enricher *billing.MerchantEnricher
	if cfg.Stripe.Enabled && cfg.Stripe.APIKey != "" {
		enricher = billing.NewMerchantEnricher(cfg.Stripe.APIKey)
	}

	var narrator *knowledgebase.NarrativeAugmenter
	if cfg.OpenAI.Enabled && cfg.OpenAI.APIKey != "" {
		narrator = knowledgebase.NewNarrativeAugmenter(cfg.OpenAI.APIKey)
	}

	if cfg.Neo4j.Enabled {
		exporter, err := graph.NewExporter(g, graph.ExporterConfig{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Interval: cfg.Neo4j.Interval,
		})
		if err != nil {
			log.Printf("graph export sink disabled: %v", err)
		} else {
			go exporter.Run(ctx)
			defer exporter.Close()
		}
	}

	engineCfg := risk.DefaultEngineConfig()
	engineCfg.DecaySweepEvery = cfg.Risk.DecaySweepEvery

	var engineCache risk.Cache
	if riskCache != nil {
		engineCache = riskCache
	}
	var engineStore risk.PersistentLog
	var enricherIface risk.MerchantEnricher
	var narratorIface risk.NarrativeAugmenter
	var publisherIface risk.EventPublisher
	if store != nil {
		engineStore = store
	}
	if enricher != nil {
		enricherIface = enricher
	}
	if narrator != nil {
		narratorIface = narrator
	}
	if publisher != nil {
		publisherIface = publisher
	}

	engine := risk.NewEngine(engineCfg, g, engineCache, engineStore, publisherIface, promMetrics, enricherIface, narratorIface)

	gateway := api.NewGateway(cfg.API, engine, checker, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if store != nil {
		gateway.SetAnalytics(
			func(ctx context.Context, hours int) (interface{}, error) { return store.RiskDistribution(ctx, hours) },
			func(ctx context.Context, userID string, days int) (interface{}, error) { return store.UserHistory(ctx, userID, days) },
			func(ctx context.Context, limit int) (interface{}, error) { return store.TopRisky(ctx, limit) },
			func(ctx context.Context, hours int) (interface{}, error) { return store.Performance(ctx, hours) },
		)
	}

	go func() {
		log.Printf("listening on %s:%d", cfg.API.Host, cfg.API.Port)
		if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway stopped unexpectedly: %v", err)
		}
	}()

	waitForShutdown(cancel, gateway)
}

func waitForShutdown(cancel context.CancelFunc, gateway *api.Gateway) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutdown signal received, stopping services...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		log.Printf("error during gateway shutdown: %v", err)
	}
	cancel()
	log.Println("fraudmesh stopped")
}

func printHelp() {
	fmt.Print(`fraudmesh - real-time transaction risk graph engine

Usage:
  fraudmesh [flags]

Flags:
  -config string   Configuration file path (optional)
  -version         Show version information
  -help            Show this help message
`)
}
