package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"duel-arena/handlers"
	"duel-arena/middleware"
	"duel-arena/models"
	"duel-arena/services"
	"duel-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "duel-arena",
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-User-Handle",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))
	app.Use(middleware.HandleContextMiddleware())

	var duelStore services.DuelStore
	var catalogStore services.CatalogStore

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatal("failed to connect to database:", err)
		}
		if err := db.AutoMigrate(
			&models.Duel{},
			&models.DuelParticipant{},
			&models.DuelProblem{},
			&models.ProblemCredit{},
			&models.CatalogProblem{},
		); err != nil {
			log.Fatal("failed to migrate database:", err)
		}
		duelStore = services.NewGormDuelStore(db)
		catalogStore = services.NewGormCatalogStore(db)
	} else {
		log.Println("⚠️  DATABASE_URL not set, using in-memory stores (data is lost on restart)")
		duelStore = services.NewMemoryDuelStore()
		catalogStore = services.NewMemoryCatalogStore()
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL:", err)
		}
		catalogStore = services.NewCachedCatalogStore(catalogStore, redis.NewClient(opts))
		log.Println("✅ Catalog cache enabled (redis)")
	}

	judge := services.NewCodeforcesClient()
	taskService := services.NewTaskService(judge, catalogStore)
	problemService := services.NewProblemService(catalogStore, judge)
	lifecycle := services.NewLifecycle(duelStore)
	scorer := services.NewScorer(duelStore, judge)
	duelService := services.NewDuelService(duelStore, lifecycle, scorer, taskService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncInterval := 6 * time.Hour
	if raw := os.Getenv("PROBLEMSET_SYNC_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			syncInterval = parsed
		} else {
			log.Printf("⚠️  Invalid PROBLEMSET_SYNC_INTERVAL %q, keeping %s", raw, syncInterval)
		}
	}
	syncWorker := workers.NewProblemsetSyncWorker(judge, catalogStore, syncInterval)
	syncWorker.Start(ctx)

	// Catches duels whose start time arrives while nobody is polling them.
	sweeper := services.StartDuelSweeper(duelStore, lifecycle)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Duel Arena Backend API",
			"status":  "Server is running!",
		})
	})

	handlers.SetupDuelRoutes(app, duelService)
	handlers.SetupTaskRoutes(app, taskService)
	handlers.SetupProblemRoutes(app, problemService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ Problemset sync running (every %s)", syncInterval)
	log.Println("✅ Duel sweeper running (every 30s)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if sweeper != nil {
		_ = sweeper.Shutdown()
	}
	lifecycle.StopTimers()
	_ = app.Shutdown()
}
