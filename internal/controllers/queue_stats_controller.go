package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/metrics"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
)

type queueStatsController struct {
	queue    metrics.QueueSource
	requests persistence.RequestStorage
}

// NewQueueStatsController reports dispatcher load next to the stored
// pending and processing counts across all users.
func NewQueueStatsController(queue metrics.QueueSource, requests persistence.RequestStorage) *queueStatsController {
	return &queueStatsController{queue: queue, requests: requests}
}

func (h *queueStatsController) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	counts := gin.H{}
	for _, st := range []domain.RequestStatus{domain.StatusPending, domain.StatusProcessing} {
		reqs, err := h.requests.ListByStatus(ctx, st)
		if err != nil {
			writeError(c, err)
			return
		}
		counts[string(st)] = len(reqs)
	}
	c.JSON(http.StatusOK, gin.H{
		"workers":    h.queue.Workers(),
		"queueDepth": h.queue.QueueDepth(),
		"inFlight":   h.queue.InFlight(),
		"requests":   counts,
	})
}
