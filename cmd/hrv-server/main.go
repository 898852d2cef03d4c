package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/remote"
	"github.com/danielpatrickdp/hrv-parity/internal/telemetry"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #region main
func main() {
	grpcAddr := flag.String("addr", envOr("HRV_GRPC_ADDR", ":50061"), "gRPC listen address (env HRV_GRPC_ADDR)")
	metricsAddr := flag.String("metrics-addr", envOr("HRV_METRICS_ADDR", ""), "serve /metrics on this address (env HRV_METRICS_ADDR)")
	engineName := flag.String("engine", envOr("HRV_ENGINE", "candidate"), "engine: reference or candidate (env HRV_ENGINE)")
	configPath := flag.String("config", envOr("HRV_PIPELINE_CONFIG", ""), "JSON pipeline config (env HRV_PIPELINE_CONFIG)")
	flag.Parse()

	cfg := pipeline.Default()
	if *configPath != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	var engine *pipeline.Engine
	switch *engineName {
	case "reference":
		engine = pipeline.NewReference(cfg)
	case "candidate":
		engine = pipeline.NewCandidate(cfg)
	default:
		log.Fatalf("unknown engine %q (want reference or candidate)", *engineName)
	}

	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *grpcAddr, err)
	}

	collector := telemetry.New(prometheus.NewRegistry())
	gs := grpc.NewServer(grpc.UnaryInterceptor(collector.UnaryServerInterceptor()))
	remote.Register(gs, remote.NewServer(engine))

	var metricsSrv *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[REMOTE] metrics server: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("[REMOTE] serving %s engine (config %s) on %s", engine.Name(), cfg.Fingerprint(), lis.Addr())
		if err := gs.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[REMOTE] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsSrv != nil {
		metricsSrv.Shutdown(ctx)
	}
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		gs.Stop()
	}
}
// #endregion main
