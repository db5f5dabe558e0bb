package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/studyware/coursepilot/internal/ai"
	"github.com/studyware/coursepilot/internal/chunk"
	"github.com/studyware/coursepilot/internal/config"
	"github.com/studyware/coursepilot/internal/db"
	"github.com/studyware/coursepilot/internal/embedcache"
	"github.com/studyware/coursepilot/internal/extract"
	"github.com/studyware/coursepilot/internal/filestore"
	"github.com/studyware/coursepilot/internal/handler"
	"github.com/studyware/coursepilot/internal/job"
	"github.com/studyware/coursepilot/internal/middleware"
	"github.com/studyware/coursepilot/internal/pkg/execx"
	"github.com/studyware/coursepilot/internal/repo"
	"github.com/studyware/coursepilot/internal/schedule"
	"github.com/studyware/coursepilot/internal/service"
	"github.com/studyware/coursepilot/internal/vecstore"
	"github.com/studyware/coursepilot/internal/youtube"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "coursepilot",
		Short: "coursepilot backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run coursepilot server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	courseRepo := repo.NewCourseRepo(conn)
	fileRepo := repo.NewFileRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)

	vectors, err := vecstore.New(cfg.VectorStore.Type, conn)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder := embedcache.WrapLRUCacheToEmbedder(
		ai.NewEmbedder(provider, cfg.AI.EmbedModel),
		cfg.AI.EmbedCacheSize,
		time.Duration(cfg.AI.EmbedCacheTTLMin)*time.Minute,
	)
	manager := ai.NewManager(
		ai.NewGenerator(provider, cfg.AI.AnswerModel),
		ai.NewVisionGenerator(provider, cfg.AI.VisionModel),
		embedder,
		ai.NewTranscriber(provider, cfg.AI.TranscribeModel),
		ai.ManagerConfig{
			Timeout:             cfg.AI.Timeout,
			MaxConcurrentEmbeds: cfg.AI.MaxConcurrentEmbeds,
		},
	)

	splitter, err := chunk.NewSplitter(cfg.Chunking.MaxChunkSize, *cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("init splitter: %w", err)
	}
	runner := execx.NewRunner()
	extractor := extract.New(runner, manager)
	video := youtube.NewClient(runner, manager, cfg.YouTube.WorkDir)

	courseService := service.NewCourseService(courseRepo, fileRepo, chunkRepo, vectors, store)
	ingestService := service.NewIngestService(
		splitter, manager, extractor, video,
		courseRepo, fileRepo, chunkRepo, vectors, store,
	)
	queryService := service.NewQueryService(courseRepo, vectors, manager, manager, service.QueryConfig{
		MaxSources:    cfg.Query.MaxSources,
		CrossRefLimit: cfg.Query.CrossRefLimit,
	})

	deps := handler.RouterDeps{
		Courses: handler.NewCourseHandler(courseService),
		Files:   handler.NewFileHandler(ingestService),
		Chat:    handler.NewChatHandler(queryService),
		Search:  handler.NewSearchHandler(queryService),
	}
	if cfg.ChatRateLimitMS > 0 {
		deps.ChatLimiter = middleware.RateLimit(time.Duration(cfg.ChatRateLimitMS) * time.Millisecond)
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewReprocessJob(ingestService, fileRepo, cfg.Jobs.ReprocessBatch), cfg.Jobs.ReprocessSpec); err != nil {
		return fmt.Errorf("schedule reprocess job: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
