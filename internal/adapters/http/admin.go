package http

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/dkeye/Broadcast/internal/app/orch"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type adminHandlers struct {
	orch *orch.Orchestrator
}

func (h *adminHandlers) listRooms(c *gin.Context) {
	rooms := h.orch.Rooms.List()
	slices.SortFunc(rooms, func(a, b domain.RoomInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *adminHandlers) evictRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("roomId"))
	err := h.orch.EvictRoom(id)
	if errors.Is(err, domain.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "http").Str("room", string(id)).Str("by", c.GetString("admin_subject")).Msg("room evicted")
	c.Status(http.StatusNoContent)
}
