package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
)

type getOptimizationController struct{ svc services.GenerationService }

func NewGetOptimizationController(svc services.GenerationService) *getOptimizationController {
	return &getOptimizationController{svc}
}

// Handle returns the search run with its trial log.
func (h *getOptimizationController) Handle(c *gin.Context) {
	run, err := h.svc.SearchRun(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
