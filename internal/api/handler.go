package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ingest-service/internal/ingest"
	"ingest-service/internal/store"
	"ingest-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TenantHeader carries the tenant context established by the upstream auth
// layer. The ingest core trusts it as ground truth for tenant isolation.
const TenantHeader = "X-Tenant-ID"

const tenantCtxKey = "tenantID"

// Handler contains HTTP handlers
type Handler struct {
	ingestService *ingest.Service
	maxBodyBytes  int64
}

// NewHandler creates a new HTTP handler
func NewHandler(ingestService *ingest.Service, maxBodyBytes int64) *Handler {
	return &Handler{
		ingestService: ingestService,
		maxBodyBytes:  maxBodyBytes,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(tenantMiddleware())
	{
		v1.POST("/ingest/orders", h.ingestOrders)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// ingestOrders streams the NDJSON request body through the ingest
// pipeline. The body is never buffered whole; 200 is returned even when
// individual lines fail, with per-line detail in the report. 503 is
// reserved for storage being unreachable before anything was attempted.
func (h *Handler) ingestOrders(c *gin.Context) {
	tenantID := c.MustGet(tenantCtxKey).(uuid.UUID)

	if c.Request.Body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body required"})
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	report, err := h.ingestService.IngestOrders(c.Request.Context(), tenantID, body)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "storage unavailable, retry the full request",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// tenantMiddleware resolves the authenticated tenant context. Requests
// without a resolvable tenant never reach the pipeline.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "tenant context required",
			})
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid tenant identifier",
			})
			return
		}
		c.Set(tenantCtxKey, tenantID)
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
