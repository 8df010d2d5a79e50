// Room HTTP handlers.
//
// This file exposes REST endpoints for interview rooms:
//   - POST /rooms                   (create, interviewer)
//   - GET  /rooms                   (list the caller's rooms)
//   - GET  /rooms/{code}            (fetch by code)
//   - POST /rooms/{code}/join       (enter a room)
//   - POST /rooms/{code}/deactivate (close to new candidates, owner only)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/sysutil"
)

// CreateRoomRequest is the JSON payload for creating a room.
type CreateRoomRequest struct {
	// Title names the position being interviewed for.
	Title string `json:"title" binding:"required,min=1,max=255" example:"Senior Go engineer"`
	// InterviewerName overrides the display name from the caller identity.
	InterviewerName string `json:"interviewer_name,omitempty" example:"Grace Hopper"`
}

// ListRoomsResponse wraps the caller's rooms, newest first.
type ListRoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

// JoinRoomResponse reports where a joining candidate continues.
type JoinRoomResponse struct {
	Room *domain.Room `json:"room"`
	// Candidate is the existing unfinished attempt, if any.
	Candidate *domain.Candidate `json:"candidate,omitempty"`
	// Stage is upload, collect-info or interview.
	Stage interview.Stage `json:"stage" example:"upload"`
}

// CreateRoom godoc
// @ID          createRoom
// @Summary     Create an interview room
// @Description Creates a room owned by the caller with a fresh shareable code.
// @Tags        Rooms
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"  example(interviewer-1)
// @Param       body       body    handlers.CreateRoomRequest  true  "Create room payload"
//
// @Success     201  {object}  domain.Room
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Candidates cannot create rooms"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rooms [post]
func (h *Handlers) CreateRoom(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	if ident.Role == domain.RoleInterviewee {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only interviewers can create rooms")
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1–255 chars)")
		return
	}
	name := sysutil.FirstNonEmpty(req.InterviewerName, ident.Name)
	room, err := h.rooms.Create(c.Request.Context(), ident.UserID, name, req.Title)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, room)
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List the caller's rooms
// @Tags        Rooms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"  example(interviewer-1)
//
// @Success     200  {object}  handlers.ListRoomsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	rooms, err := h.rooms.ListByOwner(c.Request.Context(), ident.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

// GetRoom godoc
// @ID          getRoom
// @Summary     Get a room by code
// @Description Codes are matched case-insensitively.
// @Tags        Rooms
// @Produce     json
//
// @Param       code  path  string  true  "Room code"  example(INT-7QK2ZD)
//
// @Success     200  {object}  domain.Room
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{code} [get]
func (h *Handlers) GetRoom(c *gin.Context) {
	room, err := h.rooms.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, room)
}

// JoinRoom godoc
// @ID          joinRoom
// @Summary     Join a room
// @Description Records candidate membership and applies the attempt policy: a completed
// @Description attempt is rejected with attempt_completed, an unfinished one is returned for
// @Description resumption, otherwise the caller continues with résumé upload. Interviewers
// @Description receive the room and are not recorded as members.
// @Tags        Rooms
// @Produce     json
//
// @Param       X-User-ID     header  string  false "User ID (development header)"  example(candidate-7)
// @Param       X-User-Email  header  string  false "User email (development header)"
// @Param       code          path    string  true  "Room code"  example(INT-7QK2ZD)
//
// @Success     200  {object}  handlers.JoinRoomResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Room closed or attempt completed"
// @Router      /rooms/{code}/join [post]
func (h *Handlers) JoinRoom(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	if ident.Role == domain.RoleInterviewer {
		room, err := h.rooms.GetByCode(ctx, c.Param("code"))
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, JoinRoomResponse{Room: room})
		return
	}
	res, err := h.candidates.JoinInterview(ctx, c.Param("code"), ident)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, JoinRoomResponse{Room: res.Room, Candidate: res.Candidate, Stage: res.Stage})
}

// DeactivateRoom godoc
// @ID          deactivateRoom
// @Summary     Close a room to new candidates
// @Description Unfinished attempts in the room stay resumable.
// @Tags        Rooms
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"  example(interviewer-1)
// @Param       code       path    string  true  "Room code"  example(INT-7QK2ZD)
//
// @Success     200  {object}  domain.Room
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the room owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{code}/deactivate [post]
func (h *Handlers) DeactivateRoom(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	room, err := h.rooms.Deactivate(c.Request.Context(), ident.UserID, c.Param("code"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, room)
}
