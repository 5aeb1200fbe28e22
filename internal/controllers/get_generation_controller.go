package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
)

type getGenerationController struct{ svc services.GenerationService }

func NewGetGenerationController(svc services.GenerationService) *getGenerationController {
	return &getGenerationController{svc}
}

func (h *getGenerationController) Handle(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
