package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterOptions carries the optional surfaces mounted next to the REST API
type RouterOptions struct {
	WebSocket http.HandlerFunc
	Gatherer  prometheus.Gatherer
}

func NewRouter(monitor Monitor, statsSource StatsSource, logger logrus.FieldLogger, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(monitor, statsSource, logger)
	r.GET("/healthz", h.Health)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	{
		// Reads
		api.GET("/state", h.GetState)
		api.GET("/sensors", h.GetSensors)
		api.GET("/segments", h.GetSegments)
		api.GET("/alerts", h.GetAlerts)
		api.GET("/stats", h.GetStats)

		// Simulation
		api.PUT("/simulation", h.SetSimulation)
		api.POST("/simulation/toggle", h.ToggleSimulation)

		// Leaks
		api.POST("/segments/:id/leak", h.TriggerLeak)
		api.POST("/segments/:id/resolve", h.ResolveLeak)

		// Alerts
		api.POST("/alerts/:id/read", h.MarkAlertRead)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)

		api.PUT("/selection", h.SelectSensor)

		if opts.WebSocket != nil {
			api.GET("/ws", gin.WrapF(opts.WebSocket))
		}
	}
	return r
}
