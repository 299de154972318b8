package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/marketplace/internal/service/grpc"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const shutdownTimeout = 5 * time.Second

// ServiceRegistrar регистрирует транспортные обработчики поверх сервисов маркетплейса.
type ServiceRegistrar func(server *grpc.Server, services *Services)

// Run поднимает хранилище, сервисы, доставку outbox, gRPC и HTTP с метриками.
// Возвращает ctx.Err() после остановки по ctx.
func Run(ctx context.Context, cfg Config, registrars ...ServiceRegistrar) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	services := NewServices(deps.backend, metrics.NewOperationMetrics(), cfg.OperationTimeout, logger)

	pipeline := startEventPipeline(ctx, cfg, services.Outbox, logger)
	defer pipeline.stop()

	// DefaultServerMetrics уже зарегистрированы в prometheus.DefaultRegisterer пакетом go-grpc-prometheus.
	server, grpcHealth := newGRPCServer(services, registrars, promgrpc.DefaultServerMetrics, logger)

	probes := healthcheck.NewHandler(version.GetVersion())
	probes.RegisterChecker("storage", healthcheck.NewPingChecker("storage", deps.backend))
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, probes)
	defer shutdownHTTP(metricsSrv, logger)

	return serveGRPC(ctx, server, grpcHealth, cfg.GRPCAddr, logger)
}

// newGRPCServer собирает сервер с метриками, маппингом доменных ошибок, reflection и health.
// Метрики инициализируются после регистрации всех сервисов.
func newGRPCServer(services *Services, registrars []ServiceRegistrar, serverMetrics *promgrpc.ServerMetrics, logger *log.Entry) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		serverMetrics.UnaryServerInterceptor(),
		grpcsvc.UnaryErrorInterceptor(logger.WithField("layer", "grpc")),
	))
	for _, register := range registrars {
		register(server, services)
	}
	reflection.Register(server)

	grpcHealth := health.NewServer()
	healthpb.RegisterHealthServer(server, grpcHealth)
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	serverMetrics.InitializeMetrics(server)
	return server, grpcHealth
}

func serveGRPC(ctx context.Context, server *grpc.Server, grpcHealth *health.Server, addr string, logger *log.Entry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		serveErr <- server.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
	return ctx.Err()
}

// startMetricsServer отдаёт /metrics и health-пробы; останавливается вместе с ctx.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, probes *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	probes.Mount(mux)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	context.AfterFunc(ctx, func() { shutdownHTTP(srv, logger) })

	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
