package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"agroadvisor/internal/logger"
	"agroadvisor/pkg/errors"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		deliveries := v1.Group("/deliveries")
		{
			deliveries.GET("", h.ListDeliveries)
			deliveries.GET("/:id", h.GetDelivery)
			deliveries.POST("/:id/status", h.StatusCallback)
			deliveries.POST("/:id/opened", h.MarkOpened)
			deliveries.POST("/:id/feedback", h.SubmitFeedback)
		}

		farmers := v1.Group("/farmers")
		{
			farmers.GET("/:farmerId/deliveries", h.FarmerHistory)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) GetDelivery(c *gin.Context) {
	log, err := h.service.GetLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

// StatusCallback receives delivery receipts pushed back by the SMS and
// push gateways. Only DELIVERED and DELIVERY_FAILED are accepted here;
// the other statuses have dedicated endpoints or are internal.
func (h *Handler) StatusCallback(c *gin.Context) {
	var req StatusCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	var (
		log *Log
		err error
	)
	switch req.Status {
	case StatusDelivered:
		log, err = h.service.MarkDelivered(c.Request.Context(), c.Param("id"))
	case StatusDeliveryFailed:
		log, err = h.service.MarkDeliveryFailed(c.Request.Context(), c.Param("id"), req.Reason)
	default:
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("status", string(req.Status))))
		return
	}
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *Handler) MarkOpened(c *gin.Context) {
	log, err := h.service.MarkOpened(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	log, err := h.service.MarkFeedback(c.Request.Context(), c.Param("id"), req.Feedback, req.Comment)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *Handler) ListDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := ListFilter{
		FarmerID: c.Query("farmer_id"),
		Status:   Status(c.Query("status")),
		District: c.Query("district"),
		Signal:   c.Query("signal"),
	}

	page, err := h.service.ListLogs(c.Request.Context(), filter, c.Query("cursor"), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) FarmerHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	page, err := h.service.History(c.Request.Context(), c.Param("farmerId"), c.Query("cursor"), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
