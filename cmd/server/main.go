package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/procurehq/approval-engine/internal/application/dispatcher"
	"github.com/procurehq/approval-engine/internal/application/service"
	"github.com/procurehq/approval-engine/internal/audit"
	"github.com/procurehq/approval-engine/internal/config"
	httpserver "github.com/procurehq/approval-engine/internal/interfaces/http"
	"github.com/procurehq/approval-engine/internal/notification"
	"github.com/procurehq/approval-engine/internal/repository"
	"github.com/procurehq/approval-engine/pkg/database"
	"github.com/procurehq/approval-engine/pkg/utils"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

func main() {
	// Local overrides from .env, if present
	_ = gotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval engine",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	requestRepo := repository.NewRequestRepository(db, logger)
	formRepo := repository.NewFormTemplateRepository(db, logger)
	workflowRepo := repository.NewWorkflowTemplateRepository(db, logger)
	configRepo := repository.NewConfigRepository(db, logger)
	historyRepo := repository.NewHistoryRepository(db, logger)
	fieldValueRepo := repository.NewFieldValueRepository(db, logger)
	attachmentRepo := repository.NewAttachmentRepository(db, logger)
	accessDir := repository.NewAccessDirectory(db, logger)

	// Event side effects
	eventDispatcher := dispatcher.NewDispatcher(logger)
	defer eventDispatcher.Close()

	auditSink := audit.NewSink(db, logger)
	auditSink.RegisterAll(eventDispatcher)

	notifier := notification.NewNotifier(db, requestRepo, logger)
	notifier.Register(eventDispatcher)

	// Application services
	routingService := service.NewRoutingService(configRepo, formRepo, workflowRepo, logger)
	approverService := service.NewApproverService(accessDir, logger)
	stepRouter := service.NewStepRouter(workflowRepo, logger)
	templateService := service.NewTemplateService(formRepo, workflowRepo, configRepo, requestRepo, db, eventDispatcher, logger)

	approvalService := service.NewApprovalService(service.ApprovalServiceDeps{
		RequestRepo:         requestRepo,
		FieldValueRepo:      fieldValueRepo,
		AttachmentRepo:      attachmentRepo,
		WorkflowRepo:        workflowRepo,
		HistoryRepo:         historyRepo,
		AccessDir:           accessDir,
		Routing:             routingService,
		Approvers:           approverService,
		StepRouter:          stepRouter,
		Validation:          service.NewFieldValidation(formRepo, fieldValueRepo, attachmentRepo),
		TxManager:           db,
		Dispatcher:          eventDispatcher,
		Logger:              logger,
		MinRejectCommentLen: cfg.Engine.MinRejectCommentLen,
		MaxListPageSize:     cfg.Engine.MaxListPageSize,
	})

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, approvalService, templateService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server exited")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}
