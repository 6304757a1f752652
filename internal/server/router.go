package server

import (
  "strings"
  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"
  "github.com/medclinic/rag-server/internal/handlers"
  "github.com/medclinic/rag-server/internal/middleware"
)

type RouterConfig struct {
  AuthHandler        *handlers.AuthHandler
  RAGHandler         *handlers.RAGHandler
  AuthMiddleware     *middleware.AuthMiddleware
  InternalMiddleware *middleware.InternalMiddleware
  AllowOrigins       string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  origins := strings.Split(cfg.AllowOrigins, ",")
  for i := range origins {
    origins[i] = strings.TrimSpace(origins[i])
  }
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Internal-Key", "X-Requested-With"},
    AllowCredentials: true,
  }))

  // ===============
  // || Public    ||
  // ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  router.POST("/api/login", cfg.AuthHandler.Login)

  // =========================
  // || Session-protected   ||
  // =========================
  protected := router.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  protected.POST("/api/logout", cfg.AuthHandler.Logout)

  query := protected.Group("/rag")
  query.Use(cfg.AuthMiddleware.RequireDoctor())
  query.POST("/query", cfg.RAGHandler.Query)

  // =========================
  // || Internal-key only   ||
  // =========================
  internal := router.Group("/rag")
  internal.Use(cfg.InternalMiddleware.RequireInternalKey())
  internal.POST("/index", cfg.RAGHandler.Index)
  internal.DELETE("/index", cfg.RAGHandler.RemoveIndex)
  internal.POST("/reindex-all", cfg.RAGHandler.ReindexAll)

  return router
}
