package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type subthemePayload struct {
	ID          *int64                  `json:"id"`
	Name        string                  `json:"name"`
	Description conferences.Description `json:"description"`
	TypeID      int64                   `json:"type_id"`
	UserIDs     []int64                 `json:"user_ids"`
}

type conferencePayload struct {
	Name         string                  `json:"name"`
	Description  conferences.Description `json:"description"`
	Categories   []int64                 `json:"categories"`
	Subthemes    []subthemePayload       `json:"subthemes"`
	OriginalText string                  `json:"original_text"`
	ImprovedText string                  `json:"improved_text"`
}

func (p conferencePayload) toInput() conferences.ConferenceInput {
	input := conferences.ConferenceInput{
		Name:         p.Name,
		Description:  p.Description,
		Categories:   p.Categories,
		OriginalText: p.OriginalText,
		ImprovedText: p.ImprovedText,
		Subthemes:    make([]conferences.SubthemeInput, 0, len(p.Subthemes)),
	}
	for _, subtheme := range p.Subthemes {
		var id *conferences.SubthemeID
		if subtheme.ID != nil {
			value := conferences.SubthemeID(*subtheme.ID)
			id = &value
		}
		input.Subthemes = append(input.Subthemes, conferences.SubthemeInput{
			ID:          id,
			Name:        subtheme.Name,
			Description: subtheme.Description,
			TypeID:      subtheme.TypeID,
			UserIDs:     subtheme.UserIDs,
		})
	}
	return input
}

func (h *httpHandler) handleCreateConference(c *gin.Context) {
	var request conferencePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	id, err := h.conferences.Create(c.Request.Context(), request.toInput())
	if err != nil {
		h.respondConferenceError(c, err)
		return
	}

	h.events.Publish(ConferenceEvent{Type: EventConferenceCreated, ConferenceID: id})
	c.JSON(http.StatusOK, gin.H{"status": "success", "conference_id": id})
}

func (h *httpHandler) handleListConferences(c *gin.Context) {
	summaries, err := h.conferences.List(c.Request.Context())
	if err != nil {
		h.respondConferenceError(c, err)
		return
	}
	if summaries == nil {
		summaries = []conferences.ConferenceSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conferences": summaries})
}

func (h *httpHandler) handleGetConference(c *gin.Context) {
	id, ok := parseConferenceID(c)
	if !ok {
		return
	}
	details, err := h.conferences.Get(c.Request.Context(), id)
	if err != nil {
		h.respondConferenceError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *httpHandler) handleUpdateConference(c *gin.Context) {
	id, ok := parseConferenceID(c)
	if !ok {
		return
	}
	var request conferencePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.conferences.Update(c.Request.Context(), id, request.toInput()); err != nil {
		h.respondConferenceError(c, err)
		return
	}

	h.events.Publish(ConferenceEvent{Type: EventConferenceUpdated, ConferenceID: id})
	c.JSON(http.StatusOK, gin.H{"status": "success", "conference_id": id})
}

type conferenceEventPayload struct {
	ConferenceID conferences.ConferenceID `json:"conference_id"`
	Timestamp    int64                    `json:"ts"`
	Source       string                   `json:"source"`
}

func (h *httpHandler) handleConferenceEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(event.Type, conferenceEventPayload{
				ConferenceID: event.ConferenceID,
				Timestamp:    event.Timestamp.Unix(),
				Source:       realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, conferenceEventPayload{
				Timestamp: tick.UTC().Unix(),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
}

func parseConferenceID(c *gin.Context) (conferences.ConferenceID, bool) {
	value, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_conference_id"})
		return 0, false
	}
	return conferences.ConferenceID(value), true
}

func (h *httpHandler) respondConferenceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conferences.ErrConferenceNotFound):
		h.respondError(c, http.StatusNotFound, "conference_not_found", err)
	case errors.Is(err, conferences.ErrInvalidConference):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_conference", "detail": err.Error()})
	default:
		h.respondError(c, http.StatusInternalServerError, "conference_operation_failed", err)
	}
}

type userPayload struct {
	Name       string  `json:"name"`
	Surname    string  `json:"surname"`
	Patronymic *string `json:"patronymic"`
	RoleID     int64   `json:"role_id"`
	Telephone  string  `json:"telephone"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
}

func (h *httpHandler) handleListRoles(c *gin.Context) {
	roles, err := h.users.ListRoles(c.Request.Context())
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "roles_unavailable", err)
		return
	}
	if roles == nil {
		roles = []users.Role{}
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	list, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "users_unavailable", err)
		return
	}
	if list == nil {
		list = []users.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request userPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	id, err := h.users.CreateUser(c.Request.Context(), users.UserInput{
		Name:       request.Name,
		Surname:    request.Surname,
		Patronymic: request.Patronymic,
		RoleID:     request.RoleID,
		Telephone:  request.Telephone,
		Email:      request.Email,
		Password:   request.Password,
	})
	switch {
	case errors.Is(err, users.ErrInvalidUser):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user", "detail": err.Error()})
		return
	case errors.Is(err, users.ErrUnknownRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_role"})
		return
	case err != nil:
		h.respondError(c, http.StatusInternalServerError, "user_creation_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user_id": id})
}
