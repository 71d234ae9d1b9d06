package policyopa

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"cityos/internal/infra/pdp"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewHandler serves the PDP check protocol backed by engine. When apiKey is
// set every check must carry it as a bearer token.
func NewHandler(engine *Engine, apiKey string, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(pdp.CheckPath, func(c *gin.Context) {
		if apiKey != "" && !bearerMatches(c.GetHeader("Authorization"), apiKey) {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "invalid api key"})
			return
		}
		var req pdp.CheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "invalid check request"})
			return
		}
		resp, err := engine.Check(c.Request.Context(), req)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"request_id": req.RequestID,
				"error":      err.Error(),
			}).Error("policy evaluation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "policy evaluation failed"})
			return
		}
		c.JSON(http.StatusOK, resp)
	})
	return r
}

func bearerMatches(header, apiKey string) bool {
	header = strings.TrimSpace(header)
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return false
	}
	token := strings.TrimSpace(header[len("bearer "):])
	return subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1
}
