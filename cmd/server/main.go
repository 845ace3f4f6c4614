package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/promptline/api/internal/config"
	"github.com/promptline/api/internal/handler"
	"github.com/promptline/api/internal/logger"
	"github.com/promptline/api/internal/middleware"
	"github.com/promptline/api/internal/provider"
	"github.com/promptline/api/internal/service"
	"github.com/promptline/api/internal/worker"
	ws "github.com/promptline/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LogLevel, logFormat(cfg))

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", slog.String("error", err.Error()))
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run()

	// Select the backend once at startup; absence of a key is not an error,
	// it selects the deterministic fallback.
	backend, mode := selectBackend(cfg, log)

	// Initialize service and handlers
	taskService := service.NewTaskService(redisClient, asynqClient, cfg, log)
	taskHandler := handler.NewTaskHandler(taskService, validate, mode)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Task routes
	app.Post("/process", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin), taskHandler.Process)
	app.Get("/status/:taskId", taskHandler.Status)
	app.Get("/", taskHandler.Root)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/tasks/:taskId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("taskId"))
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, redisOpt, taskService, backend, hub, log)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", slog.String("error", err.Error()))
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info("server starting", slog.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// selectBackend picks the backend variant from the configured credentials.
// The choice is static for the process lifetime.
func selectBackend(cfg *config.Config, log *slog.Logger) (provider.Provider, string) {
	if cfg.OpenAI.APIKey != "" {
		log.Info("OPENAI_API_KEY found, using OpenAI backend", slog.String("model", cfg.OpenAI.Model))
		return provider.NewOpenAI(&cfg.OpenAI), "OpenAI"
	}

	delay := time.Duration(cfg.Task.FallbackDelaySeconds) * time.Second
	log.Warn("OPENAI_API_KEY not set, using fallback backend",
		slog.Duration("simulated_delay", delay))
	mode := fmt.Sprintf("simple fallback (%ds delay + fixed response)", cfg.Task.FallbackDelaySeconds)
	return provider.NewFallback(delay), mode
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, taskService *service.TaskService, backend provider.Provider, hub *ws.Hub, log *slog.Logger) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Worker.Queue: 1,
			},
		},
	)

	opts := provider.Options{
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	}
	taskWorker := worker.NewTaskWorker(taskService, backend, opts, hub, log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeProcess, taskWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error("asynq worker error", slog.String("error", err.Error()))
	}
}

func logFormat(cfg *config.Config) string {
	if cfg.Server.Env == "production" {
		return "json"
	}
	return "console"
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
