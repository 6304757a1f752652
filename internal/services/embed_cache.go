package services

import (
  "context"
  "crypto/sha256"
  "encoding/hex"
  "encoding/json"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/utils"
)

// EmbedCache holds recently computed query embeddings so repeated searches
// for the same phrase skip a round trip to the embedding backend. Best
// effort: cache errors are logged and treated as misses.
type EmbedCache interface {
  Get(ctx context.Context, model, text string) ([]float32, bool)
  Set(ctx context.Context, model, text string, embedding []float32)
}

type redisEmbedCache struct {
  log    *logger.Logger
  client *redis.Client
  ttl    time.Duration
}

// NewEmbedCache returns nil when REDIS_ADDR is unset; the retriever treats
// a nil cache as disabled.
func NewEmbedCache(log *logger.Logger) EmbedCache {
  addr := utils.GetEnv("REDIS_ADDR", "", log)
  if addr == "" {
    return nil
  }
  client := redis.NewClient(&redis.Options{
    Addr:     addr,
    Password: utils.GetEnv("REDIS_PASSWORD", "", nil),
    DB:       utils.GetEnvAsInt("REDIS_DB", 0, nil),
  })
  ttl := time.Duration(utils.GetEnvAsInt("RAG_EMBED_CACHE_TTL_SECONDS", 3600, log)) * time.Second
  return &redisEmbedCache{
    log:    log.With("service", "EmbedCache"),
    client: client,
    ttl:    ttl,
  }
}

func embedCacheKey(model, text string) string {
  sum := sha256.Sum256([]byte(model + "\x00" + text))
  return "rag:qe:" + hex.EncodeToString(sum[:])
}

func (c *redisEmbedCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
  raw, err := c.client.Get(ctx, embedCacheKey(model, text)).Bytes()
  if err != nil {
    if err != redis.Nil {
      c.log.Debug("Embed cache get failed", "error", err)
    }
    return nil, false
  }
  var vec []float32
  if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
    return nil, false
  }
  return vec, true
}

func (c *redisEmbedCache) Set(ctx context.Context, model, text string, embedding []float32) {
  raw, err := json.Marshal(embedding)
  if err != nil {
    return
  }
  if err := c.client.Set(ctx, embedCacheKey(model, text), raw, c.ttl).Err(); err != nil {
    c.log.Debug("Embed cache set failed", "error", err)
  }
}
