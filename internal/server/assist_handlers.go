package server

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/confdesk/backend/internal/protocol"
	"github.com/confdesk/backend/internal/speech"
	"github.com/confdesk/backend/internal/tracker"
	"github.com/confdesk/backend/internal/upstream"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const audioFormField = "audio_file"

func (h *httpHandler) handleRecognize(c *gin.Context) {
	if h.transcriber == nil || h.assistant == nil {
		h.respondNotConfigured(c)
		return
	}

	header, err := c.FormFile(audioFormField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_audio_file"})
		return
	}
	if !speech.SupportedFile(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_file_format"})
		return
	}

	language := strings.TrimSpace(c.DefaultQuery("language", c.PostForm("language")))
	if language == "" {
		language = speech.DefaultLanguage
	}
	samplingRate := speech.DefaultSamplingRate
	if raw := strings.TrimSpace(c.DefaultQuery("sampling_rate", c.PostForm("sampling_rate"))); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sampling_rate"})
			return
		}
		samplingRate = parsed
	}

	file, err := header.Open()
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "audio_unreadable", err)
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	transcript, err := h.transcriber.Transcribe(ctx, header.Filename, file, language, samplingRate)
	if err != nil {
		h.respondUpstreamError(c, "recognition_failed", err)
		return
	}
	improved, err := h.assistant.ImproveText(ctx, transcript)
	if err != nil {
		h.respondUpstreamError(c, "text_improvement_failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"text":     improved,
		"raw_text": transcript,
		"language": language,
	})
}

func (h *httpHandler) handleOptimize(c *gin.Context) {
	if h.assistant == nil {
		h.respondNotConfigured(c)
		return
	}
	text, ok := readPlainText(c)
	if !ok {
		return
	}
	topics, err := h.assistant.ExtractTopics(c.Request.Context(), text)
	if err != nil {
		h.respondUpstreamError(c, "topic_extraction_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "text": topics})
}

func (h *httpHandler) handleInfo(c *gin.Context) {
	if h.assistant == nil {
		h.respondNotConfigured(c)
		return
	}
	text, ok := readPlainText(c)
	if !ok {
		return
	}
	summary, err := h.assistant.Summarize(c.Request.Context(), text)
	if err != nil {
		h.respondUpstreamError(c, "summary_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"text":        summary.Raw,
		"title":       summary.Title,
		"description": summary.Description,
	})
}

type queuePayload struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type trackerBoardPayload struct {
	ConferenceData conferencePayload `json:"conferenceData"`
	Query          queuePayload      `json:"query"`
}

func (h *httpHandler) handleTrackerBoard(c *gin.Context) {
	if h.tracker == nil {
		h.respondNotConfigured(c)
		return
	}
	var request trackerBoardPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ConferenceData.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	issues := make([]tracker.Issue, 0, len(request.ConferenceData.Subthemes))
	for _, subtheme := range request.ConferenceData.Subthemes {
		issues = append(issues, tracker.Issue{
			Summary:     subtheme.Name,
			Description: subtheme.Description.Or(""),
		})
	}
	queue := tracker.Queue{ID: request.Query.ID, Key: request.Query.Key}

	boardID, keys, err := h.tracker.CreateBoardWithIssues(c.Request.Context(), request.ConferenceData.Name, queue, issues)
	if err != nil {
		h.logger.Warn("tracker board publication failed",
			zap.String("board", request.ConferenceData.Name),
			zap.String("board_id", boardID),
			zap.Int("issues_created", len(keys)),
			zap.Error(err))
		c.JSON(trackerStatus(err), gin.H{
			"status":     "fail",
			"error":      err.Error(),
			"board_id":   boardID,
			"issue_keys": keys,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "board_id": boardID, "issue_keys": keys})
}

func trackerStatus(err error) int {
	switch {
	case errors.Is(err, tracker.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracker.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, tracker.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, upstream.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

type protocolRequest struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleDownloadProtocol(c *gin.Context) {
	var request protocolRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ctx := c.Request.Context()

	id, err := h.conferences.FindIDByName(ctx, request.Name)
	if err != nil {
		h.respondConferenceError(c, err)
		return
	}
	details, err := h.conferences.Get(ctx, id)
	if err != nil {
		h.respondConferenceError(c, err)
		return
	}
	roles, err := h.users.ListRoles(ctx)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "roles_unavailable", err)
		return
	}
	roleNames := make(map[int64]string, len(roles))
	for _, role := range roles {
		roleNames[role.ID] = role.Name
	}

	document := protocol.Build(details, protocol.Options{Roles: roleNames})
	var buffer bytes.Buffer
	if err := protocol.WriteDOCX(&buffer, document); err != nil {
		h.respondError(c, http.StatusInternalServerError, "protocol_render_failed", err)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": document.Filename()}))
	c.Data(http.StatusOK, protocol.ContentType, buffer.Bytes())
}

func readPlainText(c *gin.Context) (string, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return "", false
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_text"})
		return "", false
	}
	return text, true
}

func (h *httpHandler) respondUpstreamError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, speech.ErrUnsupportedFormat), errors.Is(err, speech.ErrEmptyAudio):
		c.JSON(http.StatusBadRequest, gin.H{"error": message, "detail": err.Error()})
	case errors.Is(err, upstream.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": message})
	default:
		h.respondError(c, http.StatusBadGateway, message, err)
	}
}
