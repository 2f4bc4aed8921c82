package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sushihentaime/blogthread/internal/blogservice"
	"github.com/sushihentaime/blogthread/internal/common"
	"github.com/sushihentaime/blogthread/internal/mailservice"
	"github.com/sushihentaime/blogthread/internal/uploadservice"
	"github.com/sushihentaime/blogthread/internal/userservice"
)

type application struct {
	config      *Config
	logger      *slog.Logger
	userService *userservice.UserService
	blogService *blogservice.BlogService
	uploads     *uploadservice.UploadService
	mailService *mailservice.MailService
	broker      *common.MessageBroker
}

func main() {
	envFile := flag.String("env", ".env", "path to the dotenv configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := loadConfig(*envFile)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dsn := common.PostgresURI(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	db, err := common.NewDB(dsn, 25, 25, 15*time.Minute)
	if err != nil {
		logger.Error("failed to connect to the database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer common.CloseDB(db)

	if cfg.MigrationsPath != "" {
		m, err := common.Migrate(cfg.MigrationsPath, dsn)
		if err != nil {
			logger.Error("failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		m.Close()
		logger.Info("database migrations applied")
	}

	broker, err := common.NewMessageBroker(common.AMQPURI(cfg.MQUser, cfg.MQPassword, cfg.MQHost, cfg.MQPort))
	if err != nil {
		logger.Error("failed to connect to the message broker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer broker.Close()

	if err := common.SetupUserExchange(broker); err != nil {
		logger.Error("failed to setup the user exchange", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := common.SetupBlogExchange(broker); err != nil {
		logger.Error("failed to setup the blog exchange", slog.String("error", err.Error()))
		os.Exit(1)
	}

	uploads, err := uploadservice.NewUploadService(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Error("failed to prepare the upload directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cache := common.NewCache(cfg.TokenCacheTTL, 2*cfg.TokenCacheTTL)
	userService := userservice.NewUserService(db, broker, cache, logger)

	app := &application{
		config:      cfg,
		logger:      logger,
		userService: userService,
		blogService: blogservice.NewBlogService(db, userService, uploads, broker, logger),
		uploads:     uploads,
		mailService: mailservice.NewMailService(broker, cfg.MailHost, cfg.MailUser, cfg.MailPassword, cfg.MailSender, cfg.MailPort, cfg.MailRate, logger),
		broker:      broker,
	}

	if err := app.mailService.SendWelcomeEmails(); err != nil {
		logger.Error("failed to start the welcome email consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := app.mailService.SendCommentNotifications(); err != nil {
		logger.Error("failed to start the comment notification consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = app.serve(cfg.Port)
	if err != nil {
		logger.Error("failed to start the server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
