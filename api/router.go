package api

import (
	"net/http"

	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

const openAPIPath = "/openapi.json"

type RouterConfig struct {
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// SwaggerFile is served at /openapi.json and browsed under /swagger/.
	SwaggerFile string
}

// NewRouter mounts the handlers under /api/v1 next to the operational endpoints.
func NewRouter(cfg RouterConfig, inventory *InventoryHandler, payments *PaymentHandler, settlements *SettlementHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), cfg.Metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.SwaggerFile != "" {
		router.StaticFile(openAPIPath, cfg.SwaggerFile)
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL(openAPIPath))))
	}

	v1 := router.Group("/api/v1")
	inventory.Register(v1.Group("/inventory"))
	payments.Register(v1)
	settlements.Register(v1.Group("/settlements"))
	return router
}
