package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/promptline/api/internal/config"
	"github.com/promptline/api/internal/handler"
	"github.com/promptline/api/internal/logger"
	"github.com/promptline/api/internal/provider"
	"github.com/promptline/api/internal/service"
	"github.com/promptline/api/internal/worker"
	ws "github.com/promptline/api/internal/websocket"
)

// testApp holds the components needed for black-box testing
type testApp struct {
	app *fiber.App
}

// setupApp builds the Fiber app and an embedded asynq worker the same way
// main.go does, with the given backend. Requires a local Redis (DB 15);
// skips otherwise.
func setupApp(t *testing.T, backend provider.Provider) *testApp {
	t.Helper()

	redisOpts := &redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	// Unique queue per setup so stale tasks from aborted runs don't leak in
	queue := fmt.Sprintf("tasks_e2e_%d", time.Now().UnixNano())

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test", LogLevel: "error"},
		Redis:  config.RedisConfig{Addr: redisOpts.Addr, DB: redisOpts.DB},
		OpenAI: config.OpenAIConfig{MaxTokens: 300, Temperature: 0.7},
		Worker: config.WorkerConfig{Concurrency: 2, Queue: queue, MaxRetry: 1},
		Task:   config.TaskConfig{ResultTTLSeconds: 60, PendingTTLHours: 1},
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisOpts.Addr, DB: redisOpts.DB}
	asynqClient := asynq.NewClient(redisOpt)
	t.Cleanup(func() { asynqClient.Close() })

	log := logger.New(cfg.Server.LogLevel, "console")
	validate := validator.New()

	hub := ws.NewHub(log)
	go hub.Run()

	taskService := service.NewTaskService(redisClient, asynqClient, cfg, log)
	taskHandler := handler.NewTaskHandler(taskService, validate, "simple fallback (10s delay + fixed response)")

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/process", taskHandler.Process)
	app.Get("/status/:taskId", taskHandler.Status)
	app.Get("/", taskHandler.Root)

	// Embedded worker server
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{queue: 1},
		// Fast redelivery so retry scenarios finish within test deadlines
		RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
			return 200 * time.Millisecond
		},
	})
	opts := provider.Options{MaxTokens: cfg.OpenAI.MaxTokens, Temperature: cfg.OpenAI.Temperature}
	taskWorker := worker.NewTaskWorker(taskService, backend, opts, hub, log)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeProcess, taskWorker.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Error("asynq worker error: " + err.Error())
		}
	}()
	t.Cleanup(srv.Shutdown)

	return &testApp{app: app}
}

func doRequest(app *fiber.App, method, path, body string) (*http.Response, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return app.Test(req, 5000)
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to parse response body %q: %v", raw, err)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

// pollUntilTerminal polls the status endpoint until FINISHED or FAILED, or
// the deadline passes.
func pollUntilTerminal(t *testing.T, app *fiber.App, taskID string, deadline time.Duration) map[string]interface{} {
	t.Helper()

	timeout := time.After(deadline)
	for {
		select {
		case <-timeout:
			t.Fatalf("task %s did not reach a terminal state within %v", taskID, deadline)
		case <-time.After(100 * time.Millisecond):
		}

		resp, err := doRequest(app, http.MethodGet, "/status/"+taskID, "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusOK)

		result := parseJSON(t, resp)
		switch result["status"] {
		case "FINISHED", "FAILED":
			return result
		}
	}
}
