package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/medclinic/rag-server/internal/apierr"
)

type APIError struct {
  Message string `json:"message"`
  Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

// RespondServiceError maps a service-layer error onto the envelope using the
// status/code carried by apierr.Error, defaulting to 500.
func RespondServiceError(c *gin.Context, err error) {
  status, code := apierr.Resolve(err)
  RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}
