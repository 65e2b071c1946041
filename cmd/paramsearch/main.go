package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/internal/app"
	"github.com/GoSim-25-26J-441/paramsearch/internal/statusd"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/config"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	_ "go.uber.org/automaxprocs"
	"google.golang.org/grpc"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var logLevel string
	var httpAddr string
	var grpcAddr string
	var maxEvaluations int

	flag.StringVar(&configPath, "config", "", "path to the YAML config (defaults are used when empty)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP status listen address, overrides the config")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC status listen address, overrides the config")
	flag.IntVar(&maxEvaluations, "max-evaluations", -1, "stop after this many evaluations (0 = until interrupted), overrides the config")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			return 1
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if httpAddr != "" {
		cfg.Status.HTTPAddr = httpAddr
	}
	if grpcAddr != "" {
		cfg.Status.GRPCAddr = grpcAddr
	}
	if maxEvaluations >= 0 {
		cfg.MaxEvaluations = maxEvaluations
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	logger.SetDefault(logger.NewWithFormat(cfg.LogFormat, cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	search, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up search", "error", err)
		return 1
	}
	defer func() {
		if err := search.Close(); err != nil {
			logger.Warn("failed to close trial journal", "error", err)
		}
	}()

	driver := search.Driver()

	var grpcServer *grpc.Server
	if cfg.Status.GRPCAddr != "" {
		grpcLis, err := net.Listen("tcp", cfg.Status.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen for gRPC", "addr", cfg.Status.GRPCAddr, "error", err)
			return 1
		}
		grpcServer = grpc.NewServer()
		status := statusd.NewGRPCServer(driver)
		status.Register(grpcServer)
		go status.Watch(ctx)

		go func() {
			logger.Info("gRPC status server listening", "addr", cfg.Status.GRPCAddr)
			if err := grpcServer.Serve(grpcLis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.Status.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.Status.HTTPAddr,
			Handler:           statusd.NewHTTPServer(driver, search.Recorder().Handler()).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		go func() {
			logger.Info("HTTP status server listening", "addr", cfg.Status.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	summary, runErr := search.Run(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
	}

	logger.Info("search finished",
		"run_id", summary.RunID,
		"trials", summary.Trials,
		"evaluations", summary.Evaluations,
		"failures", summary.Failures,
		"duration", summary.Duration,
		"heatmap", summary.Heatmap)
	if summary.Best != nil {
		logger.Info("best result",
			"fitness", summary.Best.Fitness,
			"assignment", summary.Best.Assignment.String(),
			"artifact", summary.Best.Persisted)
	}

	if runErr != nil {
		logger.Error("search failed", "error", runErr)
		return 1
	}
	return 0
}
