package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"DriveGuard/go-backend/internal/config"
	"DriveGuard/go-backend/internal/database"
	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/handlers"
	"DriveGuard/go-backend/internal/logger"
	"DriveGuard/go-backend/internal/monitor"
	"DriveGuard/go-backend/internal/repository"
	"DriveGuard/go-backend/internal/rpc"
	"DriveGuard/go-backend/internal/services"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const version = "1.0.0"

func main() {
	cfg, warnings := config.LoadConfig()

	httpPort := flag.String("http-port", cfg.HTTPPort, "HTTP port")
	grpcPort := flag.String("grpc-port", cfg.GRPCPort, "gRPC port")
	landmarkURL := flag.String("landmark-url", cfg.LandmarkServiceURL, "landmark model service address")
	flag.Parse()

	format := cfg.LogFormat
	if cfg.IsDev() {
		format = "console"
	}
	log, err := logger.NewLogger(cfg.LogLevel, format, "driveguard")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	for _, w := range warnings {
		log.Warn(w)
	}
	log.Info("starting",
		zap.String("version", version),
		zap.String("http_port", *httpPort),
		zap.String("grpc_port", *grpcPort),
		zap.String("environment", cfg.Environment),
		zap.String("database", cfg.DSNForLog()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, emergency notifications will not be deduplicated", zap.Error(err))
	}

	metrics := services.GetMetrics()
	trips := repository.NewTripRepository(db, log)
	alerts := repository.NewAlertRepository(db, log)
	contacts := repository.NewContactRepository(db, log)
	rewards := repository.NewRewardsRepository(db, log)

	monitorDeps := monitor.Deps{
		Sink:     alerts,
		Notifier: services.NewEmergencyNotifier(rdb, cfg.NotificationStream, contacts, trips, metrics, log),
		Logger:   log,
	}
	if cfg.MQTTEnabled() {
		mc, err := services.ConnectMQTT(cfg, log)
		if err != nil {
			log.Warn("mqtt unavailable, alarm goes to the websocket only", zap.Error(err))
		} else {
			defer mc.Disconnect(250)
			monitorDeps.Alarm = services.NewMQTTAlarm(mc, cfg.MQTTTopicPrefix, log)
		}
	}
	registry := monitor.NewRegistry(monitorDeps, monitor.Options{
		NoFacePolicy: detection.ParseNoFacePolicy(cfg.NoFacePolicy),
		Timeout:      cfg.CollaboratorTimeout,
	})

	var model *services.LandmarkClient
	if *landmarkURL != "" {
		model, err = services.NewLandmarkClient(*landmarkURL, cfg.MaxMessageSizeMB, log)
		if err != nil {
			log.Warn("landmark service unavailable, only landmark frames are accepted", zap.Error(err))
			model = nil
		} else {
			defer model.Close()
		}
	}

	api := handlers.NewAPI(handlers.Deps{
		Trips:           trips,
		Alerts:          alerts,
		Contacts:        contacts,
		Rewards:         rewards,
		Registry:        registry,
		Resolver:        services.NewFrameResolver(model),
		Metrics:         metrics,
		Logger:          log,
		DatabasePing:    db.PingContext,
		RedisPing:       func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		AllowedOrigins:  cfg.AllowedOrigins(),
		MaxMessageBytes: int64(cfg.MaxMessageSizeMB) << 20,
		Version:         version,
	})

	maxMsg := cfg.MaxMessageSizeMB << 20
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsg),
		grpc.MaxSendMsgSize(maxMsg),
	)
	rpc.RegisterMonitorServer(grpcServer, handlers.NewGRPCHandler(api))

	httpServer := &http.Server{
		Addr:         listenAddr(*httpPort),
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lis, err := net.Listen("tcp", listenAddr(*grpcPort))
		if err != nil {
			return err
		}
		log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("HTTP server listening",
			zap.String("addr", httpServer.Addr),
			zap.String("websocket", "/ws"),
			zap.String("rest", "/api/*"),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown(log, grpcServer, httpServer, api, registry)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("goodbye")
}

func shutdown(log *zap.Logger, grpcServer *grpc.Server, httpServer *http.Server, api *handlers.API, registry *monitor.Registry) {
	log.Info("shutting down")

	// Watch streams and websockets return once their trip's monitor stops.
	log.Info("stopping trip monitors")
	registry.StopAll()
	api.CloseClients()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		log.Info("stopping gRPC server")
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		log.Info("gRPC server stopped")
	case <-ctx.Done():
		log.Warn("forced gRPC shutdown")
		grpcServer.Stop()
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}
}

// listenAddr accepts both "8080" and ":8080".
func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
