package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/model"
	"github.com/smukkama/pipeline-monitor/internal/stats"
)

// Monitor is the engine surface the API needs
type Monitor interface {
	Snapshot() *model.Snapshot
	Sensors() []model.Sensor
	Segments() []model.Segment
	Alerts() []model.Alert
	SetSimulating(on bool)
	ToggleSimulation() bool
	TriggerLeak(segmentID string, severity model.LeakSeverity) bool
	ResolveLeak(segmentID string) bool
	ResolveAlert(alertID string) bool
	MarkAlertRead(alertID string) bool
	SelectSensor(sensorID string) bool
}

// StatsSource supplies dashboard aggregates
type StatsSource interface {
	Latest() stats.Summary
	History() []stats.Point
}

type Handler struct {
	monitor Monitor
	stats   StatsSource
	logger  logrus.FieldLogger
}

func NewHandler(monitor Monitor, statsSource StatsSource, logger logrus.FieldLogger) *Handler {
	return &Handler{monitor: monitor, stats: statsSource, logger: logger}
}

type simulationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type leakRequest struct {
	Severity string `json:"severity" binding:"required"`
}

type selectionRequest struct {
	SensorID *string `json:"sensorId"`
}

func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

func (h *Handler) GetSensors(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Sensors())
}

func (h *Handler) GetSegments(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Segments())
}

func (h *Handler) GetAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Alerts())
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"summary": h.stats.Latest(),
		"history": h.stats.History(),
	})
}

func (h *Handler) SetSimulation(c *gin.Context) {
	var req simulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	h.monitor.SetSimulating(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"isSimulating": *req.Enabled})
}

func (h *Handler) ToggleSimulation(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isSimulating": h.monitor.ToggleSimulation()})
}

func (h *Handler) TriggerLeak(c *gin.Context) {
	id := c.Param("id")
	var req leakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	severity, err := model.ParseLeakSeverity(req.Severity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.monitor.TriggerLeak(id, severity) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Segment not found"})
		return
	}

	h.logger.WithFields(logrus.Fields{"segment": id, "severity": severity}).Info("Leak triggered via API")
	h.respondSegment(c, id)
}

func (h *Handler) ResolveLeak(c *gin.Context) {
	id := c.Param("id")
	if !h.monitor.ResolveLeak(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Segment not found"})
		return
	}
	h.respondSegment(c, id)
}

func (h *Handler) respondSegment(c *gin.Context, id string) {
	seg, ok := h.monitor.Snapshot().FindSegment(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Segment not found"})
		return
	}
	c.JSON(http.StatusOK, seg)
}

func (h *Handler) MarkAlertRead(c *gin.Context) {
	if !h.monitor.MarkAlertRead(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if !h.monitor.ResolveAlert(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found or not tied to a segment"})
		return
	}
	h.logger.WithField("alert", id).Info("Leak resolved from alert")
	c.Status(http.StatusNoContent)
}

func (h *Handler) SelectSensor(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	id := ""
	if req.SensorID != nil {
		id = *req.SensorID
	}
	if !h.monitor.SelectSensor(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sensor not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selectedSensorId": req.SensorID})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
