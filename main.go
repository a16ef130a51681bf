package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"mindscope/internal/api"
	"mindscope/internal/auth"
	"mindscope/internal/config"
	"mindscope/internal/redis"
	"mindscope/internal/service/account"
	"mindscope/internal/service/analysis"
	"mindscope/internal/service/chats"
	"mindscope/internal/storage"
	"mindscope/internal/worker"
)

func main() {
	// Provider API keys are commonly kept in .env during development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("MINDSCOPE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := cfg.BasicConfig.Driver
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// Redis backs the auth token cache and assessment sessions. The server
	// still runs without it; sessions then live in process memory.
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, using in-process session store: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	ctx := context.Background()
	accountService := account.NewService(db)
	chatsService := chats.NewService(db)
	authService := auth.NewService(db, rdb, 24*time.Hour)

	var responder analysis.Responder
	if provider := cfg.BasicConfig.Provider; provider != "" {
		llm, err := analysis.NewLLMResponder(ctx, cfg, provider)
		if err != nil {
			log.Fatalf("init llm responder: %v", err)
		}
		responder = llm
	} else {
		log.Printf("no provider configured, using fallback responder")
	}
	extractor, err := analysis.NewExtractor(ctx, "")
	if err != nil {
		log.Printf("init attachment extractor: %v", err)
		extractor = nil
	}
	engine := analysis.NewEngine(analysis.NewSessionStore(rdb), responder, extractor)
	workers := worker.NewManager(0, 0)

	handlers := api.NewHandler(accountService, chatsService, authService, engine, workers)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8000"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
