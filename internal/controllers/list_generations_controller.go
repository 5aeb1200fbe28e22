package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

const maxPageSize = 100

type listGenerationsController struct{ svc services.GenerationService }

func NewListGenerationsController(svc services.GenerationService) *listGenerationsController {
	return &listGenerationsController{svc}
}

type listResp struct {
	Items    []*domain.GenerationRequest `json:"items"`
	Total    int                         `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"pageSize"`
}

func (h *listGenerationsController) Handle(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	size, ok := queryInt(c, "pageSize", 20)
	if !ok {
		return
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxPageSize {
		size = maxPageSize
	}
	items, total, err := h.svc.List(c.Request.Context(), middleware.UserID(c), domain.RequestStatus(c.Query("status")), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []*domain.GenerationRequest{}
	}
	c.JSON(http.StatusOK, listResp{Items: items, Total: total, Page: page, PageSize: size})
}
