// Package httpapi exposes strokebot sessions over a JSON HTTP API.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Protocol-Lattice/stroke-agent/pkg/agent"
	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
	"github.com/Protocol-Lattice/stroke-agent/pkg/patient"
	"github.com/Protocol-Lattice/stroke-agent/pkg/runtime"
)

// Options configure the router.
type Options struct {
	AllowOrigins []string
	// Quiet disables the request logger, mostly for tests.
	Quiet bool
}

type handler struct {
	rt *runtime.Runtime
}

type messageRequest struct {
	Message string `json:"message" binding:"required"`
}

type messageResponse struct {
	SessionID string      `json:"session_id"`
	Reply     agent.Reply `json:"reply"`
	Error     string      `json:"error,omitempty"`
}

type transcriptResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
}

// NewRouter builds the gin engine serving rt.
func NewRouter(rt *runtime.Runtime, opts Options) *gin.Engine {
	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	if !opts.Quiet {
		router.Use(gin.Logger())
	}
	router.Use(
		gin.Recovery(),
		limitBodySize(1<<20),
		cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	h := &handler{rt: rt}
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/variables", h.variables)
	router.GET("/tools", h.tools)
	router.POST("/sessions", h.createSession)
	router.GET("/sessions/:id/messages", h.transcript)
	router.POST("/sessions/:id/messages", h.postMessage)
	router.DELETE("/sessions/:id", h.clearSession)
	return router
}

func limitBodySize(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func (h *handler) variables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fields":      patient.RequiredFields(),
		"description": agent.AcceptedVariables(),
	})
}

func (h *handler) tools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": agent.ToolSchemaVersion,
		"tools":   h.rt.Agent().Tools(),
	})
}

func (h *handler) createSession(c *gin.Context) {
	s, err := h.rt.OpenSession(c.Request.Context(), "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": s.ID()})
}

func (h *handler) transcript(c *gin.Context) {
	s, err := h.rt.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, transcriptResponse{SessionID: s.ID(), Messages: s.Transcript()})
}

func (h *handler) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"message\": \"...\"}"})
		return
	}
	s, err := h.rt.OpenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	reply, err := s.Ask(c.Request.Context(), req.Message)
	resp := messageResponse{SessionID: s.ID(), Reply: reply}
	if err != nil {
		resp.Error = err.Error()
		c.JSON(statusFor(err, reply), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) clearSession(c *gin.Context) {
	id := c.Param("id")
	s, err := h.rt.OpenSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.rt.RemoveSession(id)
	c.Status(http.StatusNoContent)
}

func statusFor(err error, reply agent.Reply) int {
	switch {
	case reply.Content == "":
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrPlannerTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrToolCallLimit):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
