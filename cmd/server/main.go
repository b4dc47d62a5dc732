package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"clinic-portal/internal/backend"
	"clinic-portal/internal/config"
	"clinic-portal/internal/handler"
	portalhealth "clinic-portal/internal/health"
	"clinic-portal/internal/metrics"
	"clinic-portal/internal/middleware"
	"clinic-portal/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	// activity log, optional
	var activity store.ActivityLog = store.Discard
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("db ping: %v", err)
		}
		log.Println("connected to postgres")

		st := store.New(pool)
		if migration, err := os.ReadFile("db/migrations/001_init.sql"); err != nil {
			log.Printf("migration file not found, skipping: %v", err)
		} else if err := st.Migrate(ctx, string(migration)); err != nil {
			log.Printf("migration warning: %v", err)
		} else {
			log.Println("migration applied")
		}
		activity = st
	} else {
		log.Println("DATABASE_URL not set, activity log disabled")
	}

	// login rate limit, shared through redis when configured
	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		defer rdb.Close()
		log.Println("connected to redis")
		limiter = middleware.NewRedisLimiter(rdb, cfg.LoginRate, cfg.LoginBurst)
	} else {
		ml := middleware.NewMemoryLimiter(cfg.LoginRate, cfg.LoginBurst)
		defer ml.Close()
		limiter = ml
	}

	m := metrics.New()
	api := backend.New(cfg.BackendURL, cfg.BackendTimeout, backend.WithObserver(m))

	// grpc health service tracks backend reachability
	hs := health.NewServer()
	prober := portalhealth.NewProber(api, hs, cfg.BackendTimeout)
	if err := prober.Start(cfg.HealthSchedule); err != nil {
		log.Fatalf("health schedule: %v", err)
	}
	defer prober.Stop()

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		log.Printf("grpc health on %s", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Printf("grpc: %v", err)
		}
	}()

	h, err := handler.New(api, activity, m, handler.Config{
		Secret:       cfg.Secret,
		CookieSecure: cfg.CookieSecure,
		Limiter:      limiter,
		Health:       prober,
	})
	if err != nil {
		log.Fatalf("handler: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("portal on %s, backend %s", cfg.HTTPAddr, cfg.BackendURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Println("shutting down")
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
}
