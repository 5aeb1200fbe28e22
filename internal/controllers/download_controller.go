package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
)

type downloadController struct{ svc services.GenerationService }

func NewDownloadController(svc services.GenerationService) *downloadController {
	return &downloadController{svc}
}

type downloadResp struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *downloadController) Handle(c *gin.Context) {
	url, exp, err := h.svc.DownloadURL(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, downloadResp{URL: url, ExpiresAt: exp})
}
