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

	"campusjudge/internal/common/cache"
	"campusjudge/internal/common/db"
	commonmw "campusjudge/internal/common/http/middleware"
	"campusjudge/internal/common/mq"
	"campusjudge/internal/common/storage"
	"campusjudge/internal/competition/controller"
	"campusjudge/internal/competition/repository"
	"campusjudge/internal/competition/service"
	"campusjudge/internal/judge/backend"
	"campusjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	dbProvider := db.NewStaticProvider(mysqlDB)

	redisCache, err := cache.NewRedisCacheWithConfig(appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var publisher service.VerdictPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = producer.Close()
		}()
		publisher = service.NewMQVerdictPublisher(producer, appCfg.Topics.VerdictFinal)
	} else {
		logger.Warn(ctx, "kafka brokers not configured, verdict events disabled")
	}

	sources, err := buildSourceArchive(ctx, appCfg)
	if err != nil {
		return err
	}

	judgeBackend, err := backend.Select(ctx, appCfg.Judge.Config)
	if err != nil {
		return fmt.Errorf("select judge backend failed: %w", err)
	}

	competitions := repository.NewCompetitionRepository(dbProvider)
	problems := repository.NewProblemRepositoryWithTTL(dbProvider, redisCache, appCfg.Submit.ProblemCacheTTL, appCfg.Submit.ProblemEmptyTTL)
	participants := repository.NewParticipantRepository(dbProvider)
	progress := repository.NewProgressRepository(dbProvider)
	submissions := repository.NewSubmissionRepositoryWithTTL(dbProvider, redisCache, appCfg.Submit.SubmissionCacheTTL)
	board := repository.NewLeaderboardRepository(redisCache, appCfg.Submit.LeaderboardTTL)

	timeouts := appCfg.Submit.Timeouts
	window, err := service.NewWindowManager(service.WindowConfig{
		DBProvider:   dbProvider,
		Competitions: competitions,
		Participants: participants,
		Timeout:      timeouts.DB,
	})
	if err != nil {
		return fmt.Errorf("init window manager failed: %w", err)
	}
	ledger, err := service.NewLedger(service.LedgerConfig{
		DBProvider:   dbProvider,
		Submissions:  submissions,
		Participants: participants,
		Progress:     progress,
		Leaderboard:  board,
		Publisher:    publisher,
		Timeouts:     timeouts,
	})
	if err != nil {
		return fmt.Errorf("init ledger failed: %w", err)
	}
	orchestrator, err := service.NewOrchestrator(service.OrchestratorConfig{
		Competitions: competitions,
		Problems:     problems,
		Submissions:  submissions,
		Window:       window,
		Ledger:       ledger,
		Backend:      judgeBackend,
		Sources:      sources,
		Cache:        redisCache,
		RateLimit:    appCfg.Submit.RateLimit,
		Dispatcher: service.DispatcherConfig{
			Workers:        appCfg.Judge.Workers,
			QueueSize:      appCfg.Judge.QueueSize,
			EnqueueTimeout: appCfg.Judge.EnqueueTimeout,
		},
		SourceKeyPrefix: appCfg.Submit.SourceKeyPrefix,
		MaxCodeBytes:    appCfg.Submit.MaxCodeBytes,
		ProcessTimeout:  appCfg.Judge.ProcessTimeout,
		StaleAfter:      appCfg.Submit.StaleAfter,
		Timeouts:        timeouts,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator failed: %w", err)
	}
	leaderboard, err := service.NewLeaderboardService(service.LeaderboardConfig{
		Board:        board,
		Participants: participants,
		Timeouts:     timeouts,
	})
	if err != nil {
		return fmt.Errorf("init leaderboard failed: %w", err)
	}

	orchestrator.Start(ctx)
	recoverCtx, stopRecover := context.WithCancel(ctx)
	defer stopRecover()
	go recoverLoop(recoverCtx, orchestrator, appCfg.Submit.RecoverInterval)

	httpServer := buildHTTPServer(appCfg.Server, controller.NewCompetitionController(orchestrator, leaderboard))
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("backend", string(judgeBackend.Kind())),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	stopRecover()
	// Submissions still queued after the deadline are picked up by the next
	// instance's recover sweep.
	if err := orchestrator.Stop(drainCtx); err != nil {
		logger.Warn(ctx, "judge workers did not drain", zap.Error(err))
	}
	return nil
}

func buildSourceArchive(ctx context.Context, appCfg *AppConfig) (*storage.ZstdBlobs, error) {
	if appCfg.MinIO.Endpoint == "" {
		logger.Warn(ctx, "minio not configured, source archive disabled")
		return nil, nil
	}
	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("init minio failed: %w", err)
	}
	ctxBucket, cancel := context.WithTimeout(ctx, appCfg.Submit.Timeouts.Storage)
	defer cancel()
	if err := objStorage.EnsureBucket(ctxBucket, appCfg.Submit.SourceBucket); err != nil {
		return nil, fmt.Errorf("ensure source bucket failed: %w", err)
	}
	return storage.NewZstdBlobs(objStorage, appCfg.Submit.SourceBucket)
}

// recoverLoop sweeps stale submissions at startup and then periodically.
func recoverLoop(ctx context.Context, orchestrator *service.Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, _, err := orchestrator.Recover(ctx); err != nil {
			logger.Warn(ctx, "recover stale submissions failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildHTTPServer(cfg ServerConfig, competitionController *controller.CompetitionController) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())
	router.Use(commonmw.RequestLogger())
	competitionController.Register(router)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
