package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	registered := false
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg, func(server *grpc.Server, services *Services) {
		registered = server != nil && services != nil && services.Cart != nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, registered)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	port := findFreePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", memory.NewStore(tables.All()...)))
	startMetricsServer(ctx, addr, log.WithField("test", "http"), healthHandler)

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	for _, path := range []string{"/metrics", "/readyz"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthcheck.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, healthcheck.StatusHealthy, body.Status)
	assert.Contains(t, body.Checks, "storage")
}

func TestShutdownHTTP_Nil(t *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "http"))
}

func findFreePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestNewGRPCServer_RegistersServicesAndMetrics(t *testing.T) {
	serverMetrics := promgrpc.NewServerMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(serverMetrics)

	called := false
	server, grpcHealth := newGRPCServer(nil, []ServiceRegistrar{
		func(s *grpc.Server, _ *Services) { called = s != nil },
	}, serverMetrics, log.WithField("test", "grpc"))
	defer server.Stop()

	assert.True(t, called)
	require.NotNil(t, grpcHealth)
	assert.Contains(t, server.GetServiceInfo(), "grpc.health.v1.Health")

	families, err := registry.Gather()
	require.NoError(t, err)

	var healthCheckSeries bool
	for _, family := range families {
		if family.GetName() != "grpc_server_handled_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["grpc_service"] == "grpc.health.v1.Health" && labels["grpc_method"] == "Check" {
				healthCheckSeries = true
			}
		}
	}
	assert.True(t, healthCheckSeries, "handled counter must be initialized for the health service")
}
