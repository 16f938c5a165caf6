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

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/credential"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		logrus.Fatalf("Database is unreachable: %v", err)
	}
	if err := repository.MigrateUp(db); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer redisClient.Close()

	metrics.Register()

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db, []byte(cfg.TokenEncryptionKey))
	postMediaRepo := repository.NewPostMediaRepository(db)
	selectedAccountRepo := repository.NewSelectedAccountRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)
	deadLetterRepo := repository.NewDeadLetterRepository(db)
	publishStore := repository.NewPublishStore(postRepo, selectedAccountRepo, mediaAssetRepo, historyRepo)

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	registry := platform.NewRegistry(
		platform.NewInstagram(platform.OAuthConfig{
			ClientID:     cfg.InstagramClientID,
			ClientSecret: cfg.InstagramClientSecret,
			RedirectURI:  cfg.InstagramRedirectURI,
		}, httpClient),
		platform.NewTiktok(platform.OAuthConfig{
			ClientID:     cfg.TiktokClientKey,
			ClientSecret: cfg.TiktokClientSecret,
			RedirectURI:  cfg.TiktokRedirectURI,
		}, httpClient),
		platform.NewYoutube(platform.OAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
		}, httpClient),
		platform.NewLinkedin(platform.OAuthConfig{
			ClientID:     cfg.LinkedinClientID,
			ClientSecret: cfg.LinkedinClientSecret,
			RedirectURI:  cfg.LinkedinRedirectURI,
		}, httpClient),
	)

	refresher := credential.NewRefresher(socialAccountRepo, registry, credential.Config{
		MaxAttempts:    cfg.Refresh.MaxAttempts,
		BackoffInitial: cfg.Refresh.BackoffInitial,
		Skew:           cfg.Refresh.Skew,
	})
	leaser := lock.NewLeaser(redisClient, cfg.Publish.LeaseTimeout)
	orchestrator := publisher.NewOrchestrator(publishStore, socialAccountRepo, refresher, registry, leaser, publisher.Config{
		MaxAttempts:    cfg.Publish.MaxAttempts,
		BackoffInitial: cfg.Publish.BackoffInitial,
		BackoffMax:     cfg.Publish.BackoffMax,
		FanoutLimit:    cfg.Publish.FanoutLimit,
		Ceiling:        cfg.Publish.Ceiling,
		PlatformRPS:    cfg.Publish.PlatformRPS,
		LeaseTTL:       cfg.Publish.LeaseTimeout,
	})

	workQueue := queue.NewQueue(redisConn, cfg.Queue.MaxAttempts)
	defer workQueue.Close()
	worker := queue.NewWorker(orchestrator, refresher, deadLetterRepo)

	r2Service, err := service.NewR2Service(context.Background(), cfg.R2)
	if err != nil {
		logrus.Fatalf("Failed to configure media storage: %v", err)
	}

	authService := service.NewAuthService(service.AuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.GoogleLoginRedirect,
		Secret:       cfg.SecretKey,
	}, userRepo)
	userService := service.NewUserService(userRepo)
	postService := service.NewPostService(db, postRepo, selectedAccountRepo, mediaAssetRepo, socialAccountRepo, postMediaRepo, publishStore, r2Service, workQueue, orchestrator)
	platformService := service.NewPlatformService(cfg.SecretKey, socialAccountRepo, registry, workQueue)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    512 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logrus.Errorf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)
	app.Post("/logout", auth.Logout)

	platformHandler := handlers.NewPlatformHandler(platformService, *cfg)
	app.Get("/auth/:platform", authMiddleware.AuthMiddleware(), platformHandler.AddSocialAccount)
	app.Get("/auth/:platform/callback", platformHandler.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Post("/user/remove", user.RemoveUser)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Post("/posts/compatibility", post.CheckCompatibility)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/cancel", post.CancelPost)
	api.Post("/posts/remove", post.RemovePost)

	// social accounts api routes
	api.Get("/accounts", platformHandler.ListSocialAccounts)
	api.Post("/accounts/remove", platformHandler.DeleteSocialAccount)
	api.Post("/accounts/refresh", platformHandler.RefreshSocialAccount)

	admin := handlers.NewAdminHandler(deadLetterRepo)
	api.Get("/admin/dead-letters", authMiddleware.AdminOnly(), admin.ListDeadLetters)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, refresher, job.TokenRefreshConfig{
		Interval:    cfg.Refresh.Interval,
		Lookahead:   cfg.Refresh.Lookahead,
		Concurrency: cfg.Refresh.Concurrency,
	})

	c := cron.New()
	if err := refreshTokenJob.Schedule(c); err != nil {
		logrus.Fatalf("Failed to schedule token refresh: %v", err)
	}
	c.Start()

	server := queue.NewServer(redisConn, queue.ServerConfig{Concurrency: cfg.Queue.Concurrency}, worker)
	logrus.Info("Starting the Asynq server...")
	if err := server.Start(queue.NewServeMux(worker)); err != nil {
		logrus.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()
	logrus.Infof("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, server, c, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, c *cron.Cron, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	logrus.Info("Shutting down server...")

	c.Stop()
	if err := app.Shutdown(); err != nil {
		logrus.Errorf("Failed to shut down server: %v", err)
	}
	// In-flight publishes finish or hand their lease back before exit.
	server.Shutdown()

	closeDB(db)
	logrus.Info("Server shutdown complete.")
}
