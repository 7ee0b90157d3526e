package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/meshcall/internal/directory"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-gonic/gin"
)

type directoryHandlers struct {
	dir *directory.Store
}

type createRoomRequest struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"maxParticipants"`
}

type registerUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *directoryHandlers) listRooms(c *gin.Context) {
	rooms, err := h.dir.ListRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *directoryHandlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	room, err := h.dir.CreateRoom(c.Request.Context(), req.Name, req.MaxParticipants)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *directoryHandlers) getRoom(c *gin.Context) {
	room, err := h.dir.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// registerUser stores the caller's profile under the id from its token, so
// presence lists can resolve it. Body fields override the token's claims.
func (h *directoryHandlers) registerUser(c *gin.Context) {
	ident := c.MustGet(identityKey).(domain.Identity)
	req := registerUserRequest{Username: ident.Username, Email: ident.Email}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	user, err := h.dir.CreateUser(c.Request.Context(), ident.UserID, req.Username, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *directoryHandlers) getUser(c *gin.Context) {
	user, err := h.dir.GetUser(c.Request.Context(), domain.UserID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, directory.ErrUserExists):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
