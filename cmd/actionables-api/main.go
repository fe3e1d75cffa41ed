package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hive-corporation/actionables/internal/adapter/handler"
	"github.com/hive-corporation/actionables/internal/app"
	"github.com/hive-corporation/actionables/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	flag.Parse()

	cfg, log, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "actionables api: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close(context.Background())

	router := mux.NewRouter()
	handler.NewRestHandler(a.Tx, a.Tags, cfg.API.Groups, a.Ready, log).Register(router)
	if cfg.Metrics.Enabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	token := config.Secret(cfg.API.AuthTokenEnv)
	if token == "" {
		log.Warn("API auth token not set, auth disabled", zap.String("env", cfg.API.AuthTokenEnv))
	}
	router.Use(handler.LoggingMiddleware(log))
	router.Use(handler.AuthMiddleware(token, log))

	srv := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	health := handler.NewHealthService(a.Ready, log)
	health.Update(ctx)
	go health.Watch(ctx, 15*time.Second)
	grpcSrv := handler.NewGrpcServer(health)

	lis, err := net.Listen("tcp", cfg.API.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.API.GRPCAddr), zap.Error(err))
	}

	go func() {
		log.Info("gRPC health listening", zap.String("addr", cfg.API.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("gRPC server failed", zap.Error(err))
			stop()
		}
	}()
	go func() {
		log.Info("REST API listening", zap.String("addr", cfg.API.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("REST server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down servers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	health.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("REST server forced to shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	log.Info("servers stopped gracefully")
}
