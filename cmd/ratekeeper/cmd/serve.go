package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/ratekeeper/internal/core/api"
	"github.com/solatis/ratekeeper/internal/core/db"
	"github.com/solatis/ratekeeper/internal/core/metrics"
	"github.com/solatis/ratekeeper/internal/core/server"
	"github.com/solatis/ratekeeper/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC and HTTP quote API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP port")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("grpc-port") {
		cfg.GRPCPort, _ = cmd.Flags().GetInt("grpc-port")
	}
	if cmd.Flags().Changed("http-port") {
		cfg.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := requireMigrated(database); err != nil {
		return err
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	engine := rules.NewEngine(cfg.CompileCacheSize)
	m := metrics.New()
	m.RegisterCache(engine)

	service, err := api.NewQuoteService(engine,
		db.NewRuleStore(queries, engine.Validate),
		db.NewQuoteStore(queries),
		cfg, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	httpServer, err := server.NewHTTPServer(cfg, service, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	ctx := context.Background()
	logger.Info("starting ratekeeper quote API",
		"version", Version,
		"host", cfg.Host,
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"insurance_fallback", cfg.InsuranceFallback,
	)

	errChan := make(chan error, 2)
	go func() { errChan <- grpcServer.Start(ctx) }()
	go func() { errChan <- httpServer.Start(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		shutdownErr := errors.Join(grpcServer.Shutdown(ctx), httpServer.Shutdown(ctx))
		return errors.Join(err, shutdownErr)
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
		return errors.Join(grpcServer.Shutdown(ctx), httpServer.Shutdown(ctx))
	}
}
