package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/config"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/keystore"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/logger"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/metrics"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/factory"
)

// loadConfig reads LAMPORT_* defaults and applies any flag given on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if c.IsSet("server-address") {
		cfg.ServerAddress = c.String("server-address")
	}
	if c.IsSet("listen-address") {
		cfg.ListenAddress = c.String("listen-address")
	}
	if c.IsSet("hash") {
		cfg.HashFunction = strings.ToLower(c.String("hash"))
	}
	if c.IsSet("leaf-copies") {
		cfg.LeafCopies = c.Int("leaf-copies")
	}
	if c.IsSet("persistence") {
		cfg.PersistenceType = config.PersistenceType(c.String("persistence"))
	}
	if c.IsSet("data-path") {
		cfg.DataPath = c.String("data-path")
	}
	if c.IsSet("redis-address") {
		cfg.RedisAddress = c.String("redis-address")
	}
	if c.IsSet("redis-password") {
		cfg.RedisPassword = c.String("redis-password")
	}
	if c.IsSet("redis-db") {
		cfg.RedisDB = c.Int("redis-db")
	}
	if c.IsSet("redis-key-prefix") {
		cfg.RedisKeyPrefix = c.String("redis-key-prefix")
	}
	if c.IsSet("send-attempts") {
		cfg.SendAttempts = c.Int("send-attempts")
	}
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Float64("rate-limit")
	}
	if c.IsSet("rate-burst") {
		cfg.RateBurst = c.Int("rate-burst")
	}
	if c.IsSet("metrics-address") {
		cfg.MetricsAddress = c.String("metrics-address")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runtime holds everything a command needs, built from the configuration.
type runtime struct {
	cfg           *config.Config
	logger        *zap.Logger
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	engine        *lamport.Engine
	builder       *merkle.Builder

	// only set by newRuntimeWithStore
	store    persistence.IKeyPersistence
	keyStore *keystore.KeyStore
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  l,
		metrics: metrics.NewMetrics(),
	}
	rt.engine = lamport.NewEngine(&lamport.EngineConfig{
		Hasher:  hasher,
		Logger:  l,
		Metrics: rt.metrics,
	})
	rt.builder = merkle.NewBuilder(&merkle.BuilderConfig{
		Hasher:  hasher,
		Logger:  l,
		Metrics: rt.metrics,
	})

	if cfg.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		if err := rt.metrics.Register(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		rt.metricsServer = metrics.NewServer(cfg.MetricsAddress, reg, l)
		if err := rt.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	return rt, nil
}

func newRuntimeWithStore(c *cli.Context) (*runtime, error) {
	rt, err := newRuntime(c)
	if err != nil {
		return nil, err
	}

	store, err := factory.NewPersistence(rt.cfg, rt.logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open %s persistence: %w", rt.cfg.PersistenceType, err)
	}
	rt.store = store

	ks, err := keystore.NewKeyStore(&keystore.Config{
		Persistence: store,
		Generator:   localKeyGenerator.NewLocalKeyGenerator(rt.engine, rt.logger),
		Engine:      rt.engine,
		Logger:      rt.logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.keyStore = ks
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	}
	if rt.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.metricsServer.Stop(ctx)
	}
	_ = rt.logger.Sync()
}
