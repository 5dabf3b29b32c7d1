package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/tnewman/event-gateway/pkg/broker/kafka"
	"github.com/tnewman/event-gateway/pkg/config"
	"github.com/tnewman/event-gateway/pkg/proxy"
	"github.com/tnewman/event-gateway/pkg/users"
)

var cfgFile string
var cfg config.Config
var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "event-gateway",
	Short: "Kafka event gateway for the user service",
	Long: `Publishes and consumes versioned event envelopes on Kafka, keeps user records
in sync with auth events, and exposes a gRPC publish ingress.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.event-gateway.yaml)")

	flags := rootCmd.PersistentFlags()
	flags.StringSlice(config.KeyKafkaBrokers, nil, "Comma-separated list of Kafka seed brokers")
	flags.String(config.KeyKafkaClientID, kafka.DefaultClientID, "Kafka client id")
	flags.String(config.KeyKafkaGroupID, kafka.DefaultGroupID, "Kafka consumer group")
	flags.String(config.KeyKafkaSASLMechanism, "", "SASL mechanism: plain, scram-sha-256, scram-sha-512 or aws")
	flags.String(config.KeyDatabaseURL, "", "Postgres URL for the user store (in-memory when empty)")
	flags.String(config.KeyGRPCPort, "50051", "Port for the gRPC server to listen on")
	flags.String(config.KeyMetricsAddr, ":9090", "Listen address for the /metrics endpoint")
	flags.String(config.KeyLogLevel, "info", "Log level")
	flags.Int(config.KeyMaxPendingPublishes, proxy.DefaultMaxPendingPublishes, "Maximum number of concurrent proxied publishes")

	for _, name := range []string{
		config.KeyKafkaBrokers, config.KeyKafkaClientID, config.KeyKafkaGroupID,
		config.KeyKafkaSASLMechanism, config.KeyDatabaseURL, config.KeyGRPCPort,
		config.KeyMetricsAddr, config.KeyLogLevel, config.KeyMaxPendingPublishes,
	} {
		cobra.CheckErr(viper.BindPFlag(name, flags.Lookup(name)))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".event-gateway")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		cobra.CheckErr(err)
	}
}

func main() {
	Execute()
}

func run(ctx context.Context) error {
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting event gateway...",
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
	)

	connCfg := kafka.BuildConfig(cfg.Kafka, logger)

	// --- Producer: a broken producer degrades publishing, it does not stop startup ---
	producer := kafka.NewProducer(logger)
	if err := producer.Initialize(connCfg); err != nil {
		logger.Warn("Kafka producer not initialized, events will not be published", zap.Error(err))
	} else {
		connectCtx, cancel := context.WithTimeout(ctx, connCfg.ConnectionTimeout()+connCfg.AuthenticationTimeout())
		if err := producer.Connect(connectCtx); err != nil {
			logger.Warn("Kafka producer not connected, will retry on first publish", zap.Error(err))
		}
		cancel()
	}
	defer func() {
		if err := producer.Disconnect(context.Background()); err != nil {
			logger.Error("Failed to disconnect Kafka producer", zap.Error(err))
		}
	}()

	// --- Consumer ---
	consumer := kafka.NewConsumer(logger)
	if err := consumer.Initialize(connCfg); err != nil {
		return fmt.Errorf("failed to initialize Kafka consumer: %w", err)
	}
	connectCtx, cancel := context.WithTimeout(ctx, connCfg.ConnectionTimeout()+connCfg.AuthenticationTimeout())
	err := consumer.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect Kafka consumer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := consumer.Disconnect(shutdownCtx); err != nil {
			logger.Error("Failed to disconnect Kafka consumer", zap.Error(err))
		}
	}()

	// --- User store ---
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	userService := users.NewService(store, producer, logger)
	if err := users.NewAuthEventHandlers(userService, logger).Register(ctx, consumer); err != nil {
		return fmt.Errorf("failed to register auth event handlers: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start Kafka consumer: %w", err)
	}

	// --- gRPC Server setup ---
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.GRPCPort, err)
	}

	grpcServer := grpc.NewServer()
	proxy.RegisterPublishProxyServer(grpcServer, proxy.NewPublishProxyServer(producer, logger, cfg.MaxPendingPublishes))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(proxy.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)

	logger.Info("gRPC server starting", zap.String("port", cfg.GRPCPort))
	go func() {
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server failed to serve", zap.Error(serveErr))
		}
	}()

	// --- Metrics ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gRPC server gracefully stopped.")
	case <-shutdownCtx.Done():
		logger.Warn("gRPC server did not stop gracefully within timeout, forcing shutdown.")
		grpcServer.Stop()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped.")
	return nil
}

func openStore(ctx context.Context) (users.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, using in-memory user store")
		return users.NewMemoryStore(), func() {}, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := users.NewPostgresStore(pingCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(pingCtx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Error("Failed to close user store", zap.Error(err))
		}
	}, nil
}
