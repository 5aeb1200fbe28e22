package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
)

type listNotificationsController struct {
	inbox persistence.NotificationStorage
}

func NewListNotificationsController(inbox persistence.NotificationStorage) *listNotificationsController {
	return &listNotificationsController{inbox}
}

func (h *listNotificationsController) Handle(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	if limit < 1 || limit > 200 {
		limit = 200
	}
	items, err := h.inbox.List(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
