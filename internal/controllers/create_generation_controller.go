package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

type createGenerationController struct{ svc services.GenerationService }

func NewCreateGenerationController(svc services.GenerationService) *createGenerationController {
	return &createGenerationController{svc}
}

type createReq struct {
	DatasetKey      string                     `json:"datasetKey" binding:"required"`
	DatasetName     string                     `json:"datasetName,omitempty"`
	ModelType       domain.ModelFamily         `json:"modelType" binding:"required"`
	SampleSize      int                        `json:"sampleSize" binding:"required"`
	Mode            domain.Mode                `json:"mode,omitempty"`
	Hyperparameters domain.HyperparameterSet   `json:"hyperparameters"`
	Optimization    *domain.OptimizationConfig `json:"optimization,omitempty"`
}

func (h *createGenerationController) Handle(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	out, err := h.svc.Submit(c.Request.Context(), services.SubmitInput{
		UserID:          middleware.UserID(c),
		DatasetKey:      req.DatasetKey,
		DatasetName:     req.DatasetName,
		Family:          req.ModelType,
		SampleSize:      req.SampleSize,
		Mode:            req.Mode,
		Hyperparameters: req.Hyperparameters,
		Optimization:    req.Optimization,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, out)
}
