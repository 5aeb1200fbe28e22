package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
)

type retryGenerationController struct{ svc services.GenerationService }

func NewRetryGenerationController(svc services.GenerationService) *retryGenerationController {
	return &retryGenerationController{svc}
}

// Handle resubmits a failed or cancelled request as a new one.
func (h *retryGenerationController) Handle(c *gin.Context) {
	req, err := h.svc.Retry(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, req)
}
