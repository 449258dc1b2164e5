package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/service/rooms"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	rooms *rooms.Service
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(svc *rooms.Service, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms: svc,
		log:   logger,
	}
}

// RoomRequest is the create and join request body.
type RoomRequest struct {
	RoomID   string `json:"roomId" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateRoom handles room creation.
// POST /api/rooms/create
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), req.RoomID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, rooms.ErrRoomExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room already exists"})
		case errors.Is(err, rooms.ErrInvalidRoomID), errors.Is(err, rooms.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("room", req.RoomID).Msg("failed to create room")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("room", room.RoomID).Str("email", c.GetString(ContextKeyEmail)).Msg("room created")
	c.JSON(http.StatusCreated, MessageResponse{Message: "Room created"})
}

// JoinRoom checks a room password.
// POST /api/rooms/join
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid join room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if _, err := h.rooms.Join(c.Request.Context(), req.RoomID, req.Password); err != nil {
		switch {
		case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrWrongPassword), errors.Is(err, rooms.ErrInvalidRoomID):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid room id or password"})
		default:
			h.log.Error().Err(err).Str("room", req.RoomID).Msg("failed to join room")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Joined room"})
}

// ClearMessages drops a room's history.
// DELETE /api/rooms/:roomId
func (h *RoomHandlers) ClearMessages(c *gin.Context) {
	roomID := c.Param("roomId")
	if err := h.rooms.ClearMessages(c.Request.Context(), roomID); err != nil {
		switch {
		case errors.Is(err, rooms.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		case errors.Is(err, rooms.ErrInvalidRoomID):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("room", roomID).Msg("failed to clear messages")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("room", roomID).Str("email", c.GetString(ContextKeyEmail)).Msg("room messages cleared")
	c.JSON(http.StatusOK, MessageResponse{Message: "Messages cleared"})
}
