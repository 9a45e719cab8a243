// Package server exposes the monitoring pipeline and campaign runner over
// HTTP. Every /v1 route is tenant-scoped through an API key; the tenant is
// resolved once in middleware and handlers read it from the request context.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aegisguard/aegis/internal/pipeline"
	"github.com/aegisguard/aegis/internal/redteam"
	"github.com/aegisguard/aegis/internal/store"
)

const tenantKey = "tenant"

// Server wires the HTTP surface to the pipeline, store, and campaign runner.
type Server struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	runner   *redteam.Runner
	log      *logrus.Logger
}

func New(st store.Store, p *pipeline.Pipeline, r *redteam.Runner, log *logrus.Logger) *Server {
	return &Server{store: st, pipeline: p, runner: r, log: log}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/v1", s.authTenant())
	{
		v1.POST("/monitor/messages", s.handleMonitorMessage)
		v1.POST("/monitor/tool-events", s.handleMonitorToolEvent)
		v1.POST("/redteam/campaigns", s.handleCreateCampaign)
		v1.GET("/redteam/campaigns/:id", s.handleGetCampaign)
		v1.POST("/incidents/:id/resolve", s.handleResolveIncident)
	}

	return r
}

// authTenant resolves the X-API-Key header to a tenant. Unknown keys get a
// uniform 401 with no detail about whether the key exists.
func (s *Server) authTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		tenant, err := s.store.TenantByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

func currentTenant(c *gin.Context) *store.Tenant {
	return c.MustGet(tenantKey).(*store.Tenant)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type monitorMessageRequest struct {
	AgentID   string `json:"agent_id" binding:"required"`
	Direction string `json:"direction" binding:"required,oneof=in out"`
	Content   string `json:"content" binding:"required"`
}

func (s *Server) handleMonitorMessage(c *gin.Context) {
	var req monitorMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenant := currentTenant(c)

	result, err := s.pipeline.HandleMessage(c.Request.Context(), pipeline.MessageInput{
		TenantID:  tenant.ID,
		AgentID:   req.AgentID,
		Direction: store.Direction(req.Direction),
		Content:   req.Content,
	})
	if err != nil {
		s.log.WithError(err).Error("monitor message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed":     result.Allowed,
		"reason":      result.Reason,
		"incident_id": result.IncidentID,
	})
}

type monitorToolEventRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Tool    string `json:"tool" binding:"required"`
	Args    string `json:"args"`
}

func (s *Server) handleMonitorToolEvent(c *gin.Context) {
	var req monitorToolEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenant := currentTenant(c)

	result, err := s.pipeline.HandleToolCall(c.Request.Context(), pipeline.ToolCallInput{
		TenantID: tenant.ID,
		AgentID:  req.AgentID,
		Tool:     req.Tool,
		Args:     req.Args,
	})
	if err != nil {
		s.log.WithError(err).Error("monitor tool event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed":     result.Allowed,
		"reason":      result.Reason,
		"incident_id": result.IncidentID,
	})
}

type createCampaignRequest struct {
	Name    string               `json:"name" binding:"required"`
	AgentID string               `json:"agent_id"`
	Config  store.CampaignConfig `json:"config"`
}

func (s *Server) handleCreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tenant := currentTenant(c)

	campaign := &store.Campaign{
		TenantID: tenant.ID,
		AgentID:  req.AgentID,
		Name:     req.Name,
		Status:   store.CampaignRunning,
		Config:   req.Config,
	}
	if err := s.store.CreateCampaign(c.Request.Context(), campaign); err != nil {
		s.log.WithError(err).Error("create campaign")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := s.runner.Start(c.Request.Context(), campaign.ID); err != nil {
		s.log.WithError(err).Error("start campaign")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "campaign could not be queued"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
	})
}

func (s *Server) handleGetCampaign(c *gin.Context) {
	tenant := currentTenant(c)

	campaign, err := s.store.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil || campaign.TenantID != tenant.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	incidents, err := s.store.IncidentsByCampaign(c.Request.Context(), campaign.ID)
	if err != nil {
		s.log.WithError(err).Error("list campaign incidents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]gin.H, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, gin.H{
			"id":             inc.ID,
			"severity":       inc.Severity,
			"classification": inc.Classification,
			"status":         inc.Status,
			"transcript":     inc.TranscriptRef,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"campaign_id": campaign.ID,
		"name":        campaign.Name,
		"status":      campaign.Status,
		"started_at":  campaign.StartedAt,
		"finished_at": campaign.FinishedAt,
		"incidents":   out,
	})
}

func (s *Server) handleResolveIncident(c *gin.Context) {
	tenant := currentTenant(c)
	id := c.Param("id")

	incident, err := s.store.GetIncident(c.Request.Context(), id)
	if err != nil || incident.TenantID != tenant.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	if err := s.store.ResolveIncident(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		s.log.WithError(err).Error("resolve incident")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": store.IncidentResolved})
}
