package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/llm"
	"github.com/confdesk/backend/internal/tracker"
	"github.com/confdesk/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader        = "X-Request-ID"
	requestIDContextKey    = "confdesk_request_id"
	unmatchedRoute         = "unmatched"
	defaultHeartbeat       = 25 * time.Second
	maxMultipartMemory     = 32 << 20
	errorServiceNotEnabled = "service_not_configured"
)

var (
	errMissingConferenceService = errors.New("conference service dependency required")
	errMissingUserService       = errors.New("user service dependency required")
)

type ConferenceService interface {
	Create(ctx context.Context, input conferences.ConferenceInput) (conferences.ConferenceID, error)
	Get(ctx context.Context, id conferences.ConferenceID) (conferences.ConferenceDetails, error)
	List(ctx context.Context) ([]conferences.ConferenceSummary, error)
	Update(ctx context.Context, id conferences.ConferenceID, input conferences.ConferenceInput) error
	FindIDByName(ctx context.Context, name string) (conferences.ConferenceID, error)
}

type UserService interface {
	ListRoles(ctx context.Context) ([]users.Role, error)
	ListUsers(ctx context.Context) ([]users.User, error)
	CreateUser(ctx context.Context, input users.UserInput) (int64, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader, language string, samplingRate int) (string, error)
}

type TextAssistant interface {
	ImproveText(ctx context.Context, text string) (string, error)
	ExtractTopics(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context, text string) (llm.Summary, error)
}

type BoardPublisher interface {
	CreateBoardWithIssues(ctx context.Context, name string, queue tracker.Queue, issues []tracker.Issue) (string, []string, error)
}

type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// Dependencies wires the API. Conferences and Users are required; the
// external services are optional and answer 503 when absent.
type Dependencies struct {
	Conferences       ConferenceService
	Users             UserService
	Transcriber       Transcriber
	Assistant         TextAssistant
	Tracker           BoardPublisher
	Events            *EventHub
	Metrics           RequestObserver
	MetricsHandler    http.Handler
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Conferences == nil {
		return nil, errMissingConferenceService
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewEventHub()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger, deps.Metrics))

	handler := &httpHandler{
		conferences: deps.Conferences,
		users:       deps.Users,
		transcriber: deps.Transcriber,
		assistant:   deps.Assistant,
		tracker:     deps.Tracker,
		events:      events,
		heartbeat:   heartbeat,
		logger:      logger,
	}

	router.POST("/conferences/", handler.handleCreateConference)
	router.GET("/conferences/", handler.handleListConferences)
	router.GET("/conferences/events", handler.handleConferenceEvents)
	router.GET("/conferences/:id", handler.handleGetConference)
	router.PUT("/conferences/:id", handler.handleUpdateConference)

	router.GET("/roles/", handler.handleListRoles)
	router.GET("/users/", handler.handleListUsers)
	router.POST("/users/", handler.handleCreateUser)

	router.POST("/recognize", handler.handleRecognize)
	router.POST("/optimize", handler.handleOptimize)
	router.POST("/info", handler.handleInfo)
	router.POST("/tracker_board/", handler.handleTrackerBoard)
	router.POST("/download_doc", handler.handleDownloadProtocol)

	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	return router, nil
}

type httpHandler struct {
	conferences ConferenceService
	users       UserService
	transcriber Transcriber
	assistant   TextAssistant
	tracker     BoardPublisher
	events      *EventHub
	heartbeat   time.Duration
	logger      *zap.Logger
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			if generated, err := uuid.NewV7(); err == nil {
				requestID = generated.String()
			} else {
				requestID = uuid.NewString()
			}
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func accessLogMiddleware(logger *zap.Logger, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		elapsed := time.Since(started)

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		if observer != nil {
			observer.ObserveHTTPRequest(c.Request.Method, route, status, elapsed)
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", c.GetString(requestIDContextKey)))
	}
}

type serviceCoder interface {
	Code() string
}

func (h *httpHandler) respondError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"error": message}
	var coder serviceCoder
	if errors.As(err, &coder) {
		body["code"] = coder.Code()
	}
	if status >= http.StatusInternalServerError && err != nil {
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func (h *httpHandler) respondNotConfigured(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": errorServiceNotEnabled})
}
