package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/akhenakh/rastercoding/geocoding"
	"github.com/akhenakh/rastercoding/product"
)

const appName = "coding-service"

var (
	grpcHealthServer  *grpc.Server
	httpMetricsServer *http.Server
	httpRestServer    *http.Server
	grpcMetrics       = grpcprom.NewServerMetrics(grpcprom.WithServerHandlingTimeHistogram(
		grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1}),
	))
)

// Config holds all configuration for the application, loaded from environment variables.
type Config struct {
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"INFO"`
	HTTPPort          int           `env:"HTTP_PORT" envDefault:"8080"`
	HealthPort        int           `env:"HEALTH_PORT" envDefault:"6666"`
	HTTPMetricsPort   int           `env:"METRICS_PORT" envDefault:"8888"`
	ProductPath       string        `env:"PRODUCT_PATH,required"`
	CacheMaxSize      int64         `env:"CACHE_MAX_SIZE" envDefault:"256"`
	CacheItemsToPrune uint32        `env:"CACHE_ITEMS_TO_PRUNE" envDefault:"16"`
	CacheTTL          time.Duration `env:"CACHE_TTL" envDefault:"30m"`
	PixelApproxStep   int           `env:"PIXEL_APPROX_STEP" envDefault:"0"`
	PixelEager        bool          `env:"PIXEL_EAGER" envDefault:"false"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		fmt.Printf("failed to parse config: %+v\n", err)
		os.Exit(1)
	}

	logger := createLogger(cfg, appName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	root, err := loadProduct(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load product, shutting down", "error", err)
		os.Exit(1)
	}
	defer root.Dispose()

	m := newMetrics(prometheus.DefaultRegisterer)
	a := &api{store: newStore(root, cfg, m), metrics: m}

	g, ctx := errgroup.WithContext(ctx)
	healthServer := health.NewServer()

	g.Go(func() error {
		return startHealthServer(logger, cfg, healthServer)
	})

	g.Go(func() error {
		return startMetricsServer(logger, cfg)
	})

	g.Go(func() error {
		return startHTTPRestServer(logger, cfg, a)
	})

	healthServer.SetServingStatus(appName, healthpb.HealthCheckResponse_SERVING)

	select {
	case <-interrupt:
		slog.Warn("received termination signal, starting graceful shutdown")
		cancel()
	case <-ctx.Done():
		slog.Warn("context cancelled, starting graceful shutdown")
	}

	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpMetricsServer != nil {
		if err := httpMetricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP metrics server shutdown error", "error", err)
		}
	}
	if httpRestServer != nil {
		if err := httpRestServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP REST server shutdown error", "error", err)
		}
	}
	if grpcHealthServer != nil {
		grpcHealthServer.GracefulStop()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server group returned an error", "error", err)
		os.Exit(2)
	}
}

// startHealthServer serves the gRPC health service; reflection lets grpcurl
// discover it.
func startHealthServer(logger *slog.Logger, cfg Config, healthServer *health.Server) error {
	addr := fmt.Sprintf(":%d", cfg.HealthPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gRPC Health server failed to listen: %w", err)
	}

	lopts := []logging.Option{logging.WithLogOnEvents(logging.FinishCall)}
	grpcHealthServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(InterceptorLogger(logger), lopts...),
			grpcMetrics.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			logging.StreamServerInterceptor(InterceptorLogger(logger), lopts...),
			grpcMetrics.StreamServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(grpcHealthServer, healthServer)
	reflection.Register(grpcHealthServer)
	grpcMetrics.InitializeMetrics(grpcHealthServer)

	logger.Info("gRPC health server listening", "address", addr)
	return grpcHealthServer.Serve(lis)
}

func startMetricsServer(logger *slog.Logger, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.HTTPMetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	prometheus.MustRegister(grpcMetrics)

	httpMetricsServer = &http.Server{Addr: addr, Handler: mux}
	logger.Info("HTTP metrics server listening", "address", addr)

	if err := httpMetricsServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP metrics server failed: %w", err)
	}
	return nil
}

func startHTTPRestServer(logger *slog.Logger, cfg Config, a *api) error {
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpRestServer = &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("HTTP REST server listening", "address", addr)

	if err := httpRestServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP REST server failed: %w", err)
	}
	return nil
}

func loadProduct(ctx context.Context, cfg Config, logger *slog.Logger) (*product.Product, error) {
	logger.Info("loading product", "path", cfg.ProductPath,
		"pixel_approx_step", cfg.PixelApproxStep, "pixel_eager", cfg.PixelEager)
	opts := product.Options{
		Pixel: geocoding.PixelOptions{ApproxStep: cfg.PixelApproxStep, Eager: cfg.PixelEager},
	}
	p, err := product.Open(ctx, cfg.ProductPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open product %s: %w", cfg.ProductPath, err)
	}
	return p, nil
}

func createLogger(cfg Config, appName string) *slog.Logger {
	var programLevel slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		programLevel = slog.LevelDebug
	case "INFO":
		programLevel = slog.LevelInfo
	case "WARN":
		programLevel = slog.LevelWarn
	case "ERROR":
		programLevel = slog.LevelError
	default:
		programLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     programLevel,
		AddSource: programLevel <= slog.LevelDebug,
	}).WithAttrs([]slog.Attr{slog.String("app", appName)})
	return slog.New(handler)
}

func InterceptorLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}
