package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/zhumanklv/yandex-academy-task/api"
	"github.com/zhumanklv/yandex-academy-task/config"
	"github.com/zhumanklv/yandex-academy-task/health"
	"github.com/zhumanklv/yandex-academy-task/lock"
	"github.com/zhumanklv/yandex-academy-task/logging"
	"github.com/zhumanklv/yandex-academy-task/storage"
	"github.com/zhumanklv/yandex-academy-task/validation"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/yaml"
)

const serviceName = "citizend"

var envConfig = config.Configuration{}

func main() {
	if err := env.Parse(&envConfig); err != nil {
		log.Fatal().Msgf("Configuration loading failed: %+v", err)
	}

	appConfig := config.ApplicationConfiguration{}
	readConfig(envConfig.ApplicationConfigFileYmlPath, &appConfig)

	logging.Setup(os.Stdout, appConfig.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	////////////////////////////////////////////

	client, err := storage.Connect(ctx, envConfig.MongoURI(), appConfig.Mongo.ConnectTimeout())
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("MongoDB connection failed")
	}
	defer func() { _ = client.Disconnect(ctx) }()

	store := storage.NewStore(client, envConfig.DatabaseName, envConfig.ReplicaSet != "")
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatal().Stack().Err(err).Msg("Index creation failed")
	}

	statsCache := storage.NewStatsCache(client, envConfig.DatabaseName, appConfig.Cache.TTL())
	stopJanitor := statsCache.StartJanitor(appConfig.Cache.SweepInterval())
	defer stopJanitor()

	locker := lock.New(client, envConfig.DatabaseName, lock.Options{
		Expiry: appConfig.Lock.Expiry(),
		Wait:   appConfig.Lock.Wait(),
	})

	////////////////////////////////////////////

	traceShutdown, e := setupTracing(ctx, appConfig)
	if e != nil {
		log.Fatal().Stack().Err(e).Msg("Trace setup failed")
	}
	defer traceShutdown()

	router := setupRouter(appConfig, store, locker, statsCache)
	setupHealthCheck(router, client, appConfig)

	////////////////////////////////////////////

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		port := appConfig.Server.Port
		if port == 0 {
			port = envConfig.ServerPort
		}

		addr := fmt.Sprintf(":%d", port)
		log.Info().Msgf("Listening on %s", addr)
		if err := http.ListenAndServe(addr, router); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Stack().Err(err).Msg("startup failed")
	}
}

func readConfig(filePath string, config *config.ApplicationConfiguration) {
	yamlFile, err := os.ReadFile(filePath)
	if err == nil {
		log.Debug().Msgf("Loading YAML config from %s", filePath)
		err = yaml.Unmarshal(yamlFile, config)
		if err != nil {
			log.Fatal().Stack().Err(err).Msg("Unmarshal")
		}
	} else {
		log.Printf("No config file found: %s", filePath)
	}
}

var emptyShutdown = func() {}

func setupTracing(ctx context.Context, config config.ApplicationConfiguration) (func(), error) {
	if !config.Tracing.Enabled {
		return emptyShutdown, nil
	}

	if config.Tracing.Endpoint == "" {
		return emptyShutdown, fmt.Errorf("missing tracing endpoint")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("failed to create resource")
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithEndpoint(config.Tracing.Endpoint),
	)
	if err != nil {
		return emptyShutdown, fmt.Errorf("failed to create trace exporter %v", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.Tracing.SamplerFraction)),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info().Msgf("OpenTelemetry export is enabled, to: %s", config.Tracing.Endpoint)

	return func() {
		if err = tracerProvider.Shutdown(ctx); err != nil {
			log.Fatal().Stack().Err(err).Msg("failed to shutdown TracerProvider")
		}
	}, nil
}

func setupRouter(appConfig config.ApplicationConfiguration, store *storage.Store, locker *lock.Locker, statsCache *storage.StatsCache) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(httplog.RequestLogger(httplog.NewLogger(serviceName, httplog.Options{
		JSON:    true,
		Concise: true,
	})))
	router.Use(api.MetricsMiddleware())

	routing := api.Routing{
		ServerName:   serviceName,
		ParentRouter: router,

		AppConfig: appConfig,
		Store:     store,
		Lock:      locker,
		Cache:     statsCache,
		Validator: validation.New(),
	}

	router.Route("/", func(r chi.Router) {
		if e := routing.SetupFunctionalRoutes(r); e != nil {
			log.Fatal().Stack().Err(e).Msg("route setup failed")
		}
	})

	if len(appConfig.Prometheus.Path) > 0 {
		log.Info().Msgf("Registering metrics endpoint at: %s", appConfig.Prometheus.Path)
		router.Handle(appConfig.Prometheus.Path, promhttp.Handler())
	}

	return router
}

func setupHealthCheck(router *chi.Mux, client *mongo.Client, appConfig config.ApplicationConfiguration) {
	healthChk := health.New(
		health.WithChiMux(router),
		health.WithReadinessCheck("mongodb", storage.PingCheck(client, appConfig.Mongo.PingTimeout())),
	)
	healthChk.StartListening()
}
