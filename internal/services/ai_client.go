package services

import (
  "bytes"
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "io"
  "math/rand"
  "net"
  "net/http"
  "os"
  "strconv"
  "strings"
  "time"

  "github.com/medclinic/rag-server/internal/logger"
)

// AIClient talks to an OpenAI-compatible endpoint for embeddings and answer
// generation. The clinic deployment points it at a local Ollama instance
// (nomic-embed-text + llama3.2), but any /v1-compatible server works.
type AIClient interface {
  Embed(ctx context.Context, inputs []string) ([][]float32, error)
  GenerateAnswer(ctx context.Context, system string, user string) (string, error)
  Model() string
  EmbedModel() string
}

type aiClient struct {
  log        *logger.Logger
  baseURL    string
  apiKey     string
  model      string
  embedModel string
  httpClient *http.Client

  maxRetries int
}

func NewAIClient(log *logger.Logger) (AIClient, error) {
  baseURL := os.Getenv("AI_BASE_URL")
  if baseURL == "" {
    baseURL = "http://localhost:11434"
  }

  // Optional: Ollama ignores it, hosted endpoints need it.
  apiKey := os.Getenv("AI_API_KEY")

  model := os.Getenv("AI_MODEL")
  if model == "" {
    model = "llama3.2:3b"
  }

  embed := os.Getenv("AI_EMBED_MODEL")
  if embed == "" {
    embed = "nomic-embed-text"
  }

  timeoutSec := 60
  if v := os.Getenv("AI_TIMEOUT_SECONDS"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
      timeoutSec = parsed
    }
  }

  maxRetries := 3
  if v := os.Getenv("AI_MAX_RETRIES"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
      maxRetries = parsed
    }
  }

  return &aiClient{
    log:        log.With("service", "AIClient"),
    baseURL:    strings.TrimRight(baseURL, "/"),
    apiKey:     apiKey,
    model:      model,
    embedModel: embed,
    httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    maxRetries: maxRetries,
  }, nil
}

func (c *aiClient) Model() string      { return c.model }
func (c *aiClient) EmbedModel() string { return c.embedModel }

type aiHTTPError struct {
  StatusCode int
  Body       string
}

func (e *aiHTTPError) Error() string {
  return fmt.Sprintf("ai backend http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
  if code == 408 || code == 429 {
    return true
  }
  if code >= 500 && code <= 599 {
    return true
  }
  return false
}

func isRetryableErr(err error) bool {
  if err == nil {
    return false
  }
  if errors.Is(err, context.DeadlineExceeded) {
    return true
  }
  if errors.Is(err, context.Canceled) {
    return false
  }
  var netErr net.Error
  if errors.As(err, &netErr) {
    if netErr.Timeout() {
      return true
    }
  }
  var httpErr *aiHTTPError
  if errors.As(err, &httpErr) {
    return isRetryableHTTP(httpErr.StatusCode)
  }
  // Connection refused and friends: the backend may just be restarting.
  var opErr *net.OpError
  if errors.As(err, &opErr) {
    return true
  }
  return false
}

func jitterSleep(base time.Duration) time.Duration {
  // +/- 20%
  if base <= 0 {
    return 0
  }
  j := 0.2
  delta := base.Seconds() * j
  low := base.Seconds() - delta
  high := base.Seconds() + delta
  if low < 0 {
    low = 0
  }
  v := low + rand.Float64()*(high-low)
  return time.Duration(v * float64(time.Second))
}

func (c *aiClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
  var buf bytes.Buffer
  if body != nil {
    if err := json.NewEncoder(&buf).Encode(body); err != nil {
      return nil, nil, err
    }
  }

  req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
  if err != nil {
    return nil, nil, err
  }
  if c.apiKey != "" {
    req.Header.Set("Authorization", "Bearer "+c.apiKey)
  }
  req.Header.Set("Content-Type", "application/json")

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, nil, err
  }

  raw, readErr := io.ReadAll(resp.Body)
  _ = resp.Body.Close()
  if readErr != nil {
    return resp, nil, readErr
  }

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return resp, raw, &aiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return resp, raw, nil
}

func (c *aiClient) do(ctx context.Context, method, path string, body any, out any) error {
  // exponential backoff: 1s, 2s, 4s (cap ~10s)
  backoff := 1 * time.Second

  for attempt := 0; attempt <= c.maxRetries; attempt++ {
    if ctx.Err() != nil {
      return ctx.Err()
    }

    resp, raw, err := c.doOnce(ctx, method, path, body)
    if err == nil {
      if out == nil {
        return nil
      }
      if uErr := json.Unmarshal(raw, out); uErr != nil {
        return fmt.Errorf("ai backend decode error: %w; raw=%s", uErr, string(raw))
      }
      return nil
    }

    if !isRetryableErr(err) {
      return err
    }

    if attempt == c.maxRetries {
      return err
    }

    // Respect Retry-After when present
    sleepFor := backoff
    if resp != nil {
      ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
      if ra != "" {
        if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
          sleepFor = time.Duration(secs) * time.Second
        }
      }
    }

    if sleepFor > 10*time.Second {
      sleepFor = 10 * time.Second
    }
    sleepFor = jitterSleep(sleepFor)

    c.log.Warn("AI request retrying",
      "path", path,
      "attempt", attempt+1,
      "max_retries", c.maxRetries,
      "sleep", sleepFor.String(),
      "error", err.Error(),
    )

    select {
    case <-time.After(sleepFor):
    case <-ctx.Done():
      return fmt.Errorf("ai backend retry aborted: %w", ctx.Err())
    }
    backoff *= 2
  }

  return fmt.Errorf("unreachable retry loop")
}

// ---- Embeddings ----

type embeddingsRequest struct {
  Model string   `json:"model"`
  Input []string `json:"input"`
}

type embeddingsResponse struct {
  Data []struct {
    Embedding []float64 `json:"embedding"`
    Index     int       `json:"index"`
  } `json:"data"`
}

func (c *aiClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
  if len(inputs) == 0 {
    return [][]float32{}, nil
  }
  req := embeddingsRequest{
    Model: c.embedModel,
    Input: inputs,
  }
  var resp embeddingsResponse
  if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
    return nil, err
  }
  out := make([][]float32, len(inputs))
  for _, d := range resp.Data {
    vec := make([]float32, len(d.Embedding))
    for i, f := range d.Embedding {
      vec[i] = float32(f)
    }
    if d.Index >= 0 && d.Index < len(out) {
      out[d.Index] = vec
    }
  }
  for i := range out {
    if out[i] == nil {
      return nil, fmt.Errorf("missing embedding for index %d", i)
    }
  }
  return out, nil
}

// ---- Chat completions ----

type chatMessage struct {
  Role    string `json:"role"`
  Content string `json:"content"`
}

type chatCompletionsRequest struct {
  Model       string        `json:"model"`
  Messages    []chatMessage `json:"messages"`
  Temperature float64       `json:"temperature"`
}

type chatCompletionsResponse struct {
  Choices []struct {
    Message struct {
      Content string `json:"content"`
    } `json:"message"`
  } `json:"choices"`
}

func (c *aiClient) GenerateAnswer(ctx context.Context, system string, user string) (string, error) {
  req := chatCompletionsRequest{
    Model: c.model,
    Messages: []chatMessage{
      {Role: "system", Content: system},
      {Role: "user", Content: user},
    },
    Temperature: 0.2,
  }
  var resp chatCompletionsResponse
  if err := c.do(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
    return "", err
  }
  if len(resp.Choices) == 0 {
    return "", fmt.Errorf("no choices in chat completion response")
  }
  answer := strings.TrimSpace(resp.Choices[0].Message.Content)
  if answer == "" {
    return "", fmt.Errorf("empty answer in chat completion response")
  }
  return answer, nil
}
