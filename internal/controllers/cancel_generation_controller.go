package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
)

type cancelGenerationController struct{ svc services.GenerationService }

func NewCancelGenerationController(svc services.GenerationService) *cancelGenerationController {
	return &cancelGenerationController{svc}
}

func (h *cancelGenerationController) Handle(c *gin.Context) {
	req, err := h.svc.Cancel(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
