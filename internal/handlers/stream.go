package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/eventscout-backend/internal/sse"
)

type StreamHandler struct {
	hub *sse.StreamHub
}

func NewStreamHandler(hub *sse.StreamHub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// GET /api/scrape/stream
func (h *StreamHandler) JobStream(c *gin.Context) {
	client := h.hub.NewClient()
	h.hub.AddChannel(client, sse.ChannelScrapeJobs)
	defer h.hub.RemoveClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
