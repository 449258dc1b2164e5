package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/proto"
	"github.com/vovakirdan/roomchat-server/internal/service/admin"
	"github.com/vovakirdan/roomchat-server/internal/store"
)

// AdminHandlers serves the password-gated admin views.
type AdminHandlers struct {
	admin *admin.Service
	log   *zerolog.Logger
}

// NewAdminHandlers creates a new admin handlers instance.
func NewAdminHandlers(svc *admin.Service, logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{admin: svc, log: logger}
}

// AdminRequest carries the admin password.
type AdminRequest struct {
	AdminPassword string `json:"adminPassword"`
}

// AdminRoomResponse is one room in the admin listing.
type AdminRoomResponse struct {
	RoomID     string          `json:"roomId"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastActive time.Time       `json:"lastActive"`
	Online     int             `json:"online"`
	Messages   []proto.Message `json:"messages"`
}

// ActivityResponse is one activity log record.
type ActivityResponse struct {
	ID        string         `json:"id"`
	UserEmail string         `json:"userEmail"`
	IPAddress string         `json:"ipAddress"`
	Location  store.Location `json:"location"`
	RoomID    string         `json:"roomId"`
	Action    string         `json:"action"`
	JoinTime  time.Time      `json:"joinTime"`
	ExitTime  *time.Time     `json:"exitTime,omitempty"`
}

func (h *AdminHandlers) bind(c *gin.Context) (string, bool) {
	var req AdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return "", false
	}
	return req.AdminPassword, true
}

func (h *AdminHandlers) fail(c *gin.Context, err error, what string) {
	if errors.Is(err, admin.ErrForbidden) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return
	}
	h.log.Error().Err(err).Msg(what)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// Rooms lists every room with its history and online count.
// POST /api/admin/rooms
func (h *AdminHandlers) Rooms(c *gin.Context) {
	password, ok := h.bind(c)
	if !ok {
		return
	}

	views, err := h.admin.Rooms(c.Request.Context(), password)
	if err != nil {
		h.fail(c, err, "failed to list rooms")
		return
	}

	resp := make([]AdminRoomResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, AdminRoomResponse{
			RoomID:     v.Room.RoomID,
			CreatedAt:  v.Room.CreatedAt.UTC(),
			LastActive: v.Room.LastActive.UTC(),
			Online:     v.Online,
			Messages:   proto.NewMessages(v.Room.RoomID, v.Room.Messages),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Activity lists the join/exit log, newest first.
// POST /api/admin/activity
func (h *AdminHandlers) Activity(c *gin.Context) {
	password, ok := h.bind(c)
	if !ok {
		return
	}

	records, err := h.admin.Activity(c.Request.Context(), password)
	if err != nil {
		h.fail(c, err, "failed to list activity")
		return
	}

	resp := make([]ActivityResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, ActivityResponse{
			ID:        r.ID,
			UserEmail: r.UserEmail,
			IPAddress: r.IPAddress,
			Location:  r.Location,
			RoomID:    r.RoomID,
			Action:    string(r.Action),
			JoinTime:  r.JoinTime.UTC(),
			ExitTime:  r.ExitTime,
		})
	}
	c.JSON(http.StatusOK, resp)
}
