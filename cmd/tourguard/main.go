package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashishbishnoi18/tourguard"
	"github.com/ashishbishnoi18/tourguard/defense"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := tourguard.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	google, err := tourguard.NewGoogleProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("google provider: %w", err)
	}

	opts := []tourguard.Option{
		tourguard.WithLogger(log),
		tourguard.WithProvider(google),
	}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		opts = append(opts,
			tourguard.WithSessionStore(tourguard.NewRedisSessionStore(rdb, "")),
			tourguard.WithRateLimitCounter(defense.NewRedisCounter(rdb, "")),
		)
		log.Info("sessions and rate limits in redis")
	}

	if cfg.SMTP.Enabled() {
		opts = append(opts, tourguard.WithEmailSender(tourguard.NewSMTPEmailSender(cfg.SMTP, cfg.AppBaseURL)))
	} else {
		log.Warn("SMTP not configured; emails are only logged")
	}

	auth, err := tourguard.New(cfg, store, opts...)
	if err != nil {
		return err
	}
	defer auth.Close()

	return auth.ListenAndServe(ctx, 15*time.Second)
}

func newLogger(cfg tourguard.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore picks Postgres, then MongoDB, then process memory, depending on
// what is configured.
func openStore(ctx context.Context, cfg tourguard.Config, log *zap.Logger) (tourguard.UserStore, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := tourguard.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("using postgres store")
		return tourguard.NewPostgresStore(db), func() { _ = db.Close() }, nil

	case cfg.MongoURI != "":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		store := tourguard.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		log.Info("using mongo store", zap.String("database", cfg.MongoDatabase))
		return store, disconnect, nil
	}

	if !cfg.Development() {
		return nil, nil, fmt.Errorf("DATABASE_URL or MONGODB_URI is required outside development")
	}
	log.Warn("no database configured; users are kept in memory")
	return tourguard.NewMemoryStore(), func() {}, nil
}
