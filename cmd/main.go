package main

import (
  "context"
  "fmt"
  "os"
  "time"
  "github.com/joho/godotenv"
  "github.com/medclinic/rag-server/internal/db"
  "github.com/medclinic/rag-server/internal/handlers"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/middleware"
  "github.com/medclinic/rag-server/internal/repos"
  "github.com/medclinic/rag-server/internal/server"
  "github.com/medclinic/rag-server/internal/services"
  "github.com/medclinic/rag-server/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  if err := godotenv.Load(); err != nil {
    log.Debug("No .env file loaded", "error", err)
  }
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "", log)
  if jwtSecretKey == "" {
    log.Error("JWT_SECRET_KEY is required")
    os.Exit(1)
  }
  internalAPIKey := utils.GetEnv("INTERNAL_API_KEY", "", log)
  if internalAPIKey == "" {
    log.Error("INTERNAL_API_KEY is required")
    os.Exit(1)
  }
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  reindexTimeout := utils.GetEnvAsInt("RAG_REINDEX_TIMEOUT_SECONDS", 600, log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up repos...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  summaryRepo := repos.NewTreatmentSummaryRepo(thePG, log)
  transcriptionRepo := repos.NewTranscriptionRepo(thePG, log)
  appointmentRepo := repos.NewAppointmentRepo(thePG, log)
  chunkRepo := repos.NewDocumentChunkRepo(thePG, log)

  // Services
  log.Info("Setting up services...")
  aiClient, err := services.NewAIClient(log)
  if err != nil {
    log.Error("Could not init AIClient", "error", err)
    os.Exit(1)
  }
  authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  indexService := services.NewIndexService(thePG, log, summaryRepo, transcriptionRepo, userRepo, appointmentRepo, chunkRepo, aiClient)
  indexService.StartWorker(context.Background())
  embedCache := services.NewEmbedCache(log)
  retrieveService := services.NewRetrieveService(thePG, log, chunkRepo, aiClient, embedCache)

  // Handlers
  log.Info("Setting up handlers...")
  authHandler := handlers.NewAuthHandler(authService)
  ragHandler := handlers.NewRAGHandler(log, indexService, retrieveService, time.Duration(reindexTimeout)*time.Second)

  // Middleware
  authMiddleware := middleware.NewAuthMiddleware(log, authService)
  internalMiddleware := middleware.NewInternalMiddleware(log, internalAPIKey)

  // Router
  log.Info("Setting up router...")
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:        authHandler,
    RAGHandler:         ragHandler,
    AuthMiddleware:     authMiddleware,
    InternalMiddleware: internalMiddleware,
    AllowOrigins:       utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log),
  })

  port := utils.GetEnv("PORT", "8001", log)
  log.Info("Server listening", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Error("Server failed", "error", err)
  }
}
