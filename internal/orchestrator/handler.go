package orchestrator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agroadvisor/internal/logger"
	"agroadvisor/pkg/errors"
)

type Handler struct {
	orchestrator *Orchestrator
	logger       logger.Logger
}

func NewHandler(orchestrator *Orchestrator, log logger.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		logger:       log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		orch := v1.Group("/orchestrator")
		{
			orch.POST("/cycle", h.TriggerCycle)
			orch.POST("/farmers/:farmerId", h.ProcessFarmer)
			orch.GET("/status", h.Status)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// TriggerCycle runs a full evaluation cycle synchronously and returns
// the report. A cycle already in flight yields 409.
func (h *Handler) TriggerCycle(c *gin.Context) {
	report, err := h.orchestrator.RunCycle(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ProcessFarmer(c *gin.Context) {
	report, err := h.orchestrator.ProcessFarmer(c.Request.Context(), c.Param("farmerId"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Health())
}
