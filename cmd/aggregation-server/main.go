package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	httpapi "github.com/i474232898/weather-data-distribution/internal/api/http"
	"github.com/i474232898/weather-data-distribution/internal/config"
	"github.com/i474232898/weather-data-distribution/internal/lamport"
	"github.com/i474232898/weather-data-distribution/internal/scheduler"
	"github.com/i474232898/weather-data-distribution/internal/server"
	"github.com/i474232898/weather-data-distribution/internal/store"
	"github.com/i474232898/weather-data-distribution/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// A port argument overrides the environment, as the deployment scripts
	// expect.
	port := cfg.Port
	if len(os.Args) > 1 {
		p, err := strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("invalid port argument %q: %v", os.Args[1], err)
		}
		port = p
	}

	clock := lamport.New()
	memStore := store.NewMemoryStore(cfg.ProducerExpiry)

	// Restore the last checkpoint if one exists. A missing or corrupt file
	// means starting empty, never aborting.
	if err := store.LoadCheckpoint(cfg.CheckpointFile, memStore, clock); err != nil {
		log.Printf("INFO: starting with empty state: %v", err)
	} else {
		log.Printf("INFO: server state loaded from %s", cfg.CheckpointFile)
	}

	// Bind before anything else; a busy port is fatal.
	listener, err := transport.Listen(port)
	if err != nil {
		log.Fatalf("failed to listen on port %d: %v", port, err)
	}

	// Checkpointer on its interval.
	sched := scheduler.New(cfg.CheckpointInterval, func() {
		if err := store.SaveCheckpoint(cfg.CheckpointFile, memStore, clock); err != nil {
			log.Printf("ERROR: checkpoint save failed: %v", err)
		}
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start checkpoint scheduler: %v", err)
	}
	defer sched.Stop()

	// Optional operator status API.
	var app *fiber.App
	if cfg.StatusPort != "" {
		app = fiber.New(fiber.Config{
			AppName:               "weather-data-distribution",
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				if e, ok := err.(*fiber.Error); ok {
					code = e.Code
				}
				return c.Status(code).JSON(fiber.Map{
					"error":   true,
					"message": err.Error(),
				})
			},
		})

		app.Use(logger.New())
		app.Use(recover.New())

		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status":  "ok",
				"service": "weather-data-distribution",
			})
		})

		httpapi.RegisterRoutes(app, memStore, clock)

		go func() {
			if err := app.Listen(":" + cfg.StatusPort); err != nil {
				log.Printf("fiber server stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("INFO: aggregation server accepting connections on port %d", port)
	srv := server.New(listener, clock, memStore, cfg.QueueSize)
	srv.Run(ctx)

	// Best-effort final snapshot on the way down.
	if err := store.SaveCheckpoint(cfg.CheckpointFile, memStore, clock); err != nil {
		log.Printf("ERROR: final checkpoint save failed: %v", err)
	}

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	}
}
