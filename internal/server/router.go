package server

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/oneiroslab/oneiros/backend/internal/auth"
	"github.com/oneiroslab/oneiros/backend/internal/capture"
	"github.com/oneiroslab/oneiros/backend/internal/credentials"
	"github.com/oneiroslab/oneiros/backend/internal/journal"
	"github.com/oneiroslab/oneiros/backend/internal/session"
	"go.uber.org/zap"
)

const (
	subjectContextKey = "oneiros_subject"
	tokenSubject      = "journal-owner"
)

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingCapture      = errors.New("capture orchestrator dependency required")
	errMissingJournal      = errors.New("journal service dependency required")
	errMissingGate         = errors.New("credential gate dependency required")
	errMissingSession      = errors.New("session tracker dependency required")
	errMissingClientSecret = errors.New("client secret required")
	errInvalidAuth         = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the bearer tokens the client uses.
type TokenManager interface {
	IssueToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// CaptureService sequences the capture and chat flows.
type CaptureService interface {
	Capture(ctx context.Context, audio []byte, size journal.ImageSize) (journal.DreamRecord, error)
	Chat(ctx context.Context, recordID, message string) (journal.ChatTurn, error)
	Busy() bool
}

// JournalReader exposes the read side of the dream collection.
type JournalReader interface {
	ListRecords(ctx context.Context) []journal.DreamRecord
	GetRecord(ctx context.Context, recordID string) (journal.DreamRecord, bool)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	TokenManager TokenManager
	Capture      CaptureService
	Journal      JournalReader
	Gate         credentials.Gate
	Session      *session.Tracker
	Events       *EventDispatcher
	ClientSecret string
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the journal API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Capture == nil {
		return nil, errMissingCapture
	}
	if deps.Journal == nil {
		return nil, errMissingJournal
	}
	if deps.Gate == nil {
		return nil, errMissingGate
	}
	if deps.Session == nil {
		return nil, errMissingSession
	}
	if strings.TrimSpace(deps.ClientSecret) == "" {
		return nil, errMissingClientSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Events
	if dispatcher == nil {
		dispatcher = NewEventDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		capture:      deps.Capture,
		journal:      deps.Journal,
		gate:         deps.Gate,
		session:      deps.Session,
		events:       dispatcher,
		clientSecret: deps.ClientSecret,
		logger:       logger,
	}

	router.POST("/auth/session", handler.handleAuthSession)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/dreams", handler.handleListDreams)
	protected.GET("/dreams/:id", handler.handleGetDream)
	protected.POST("/captures", handler.handleCapture)
	protected.POST("/dreams/:id/chat", handler.handleChat)
	protected.GET("/credential", handler.handleCredentialStatus)
	protected.PUT("/credential", handler.handleCredentialUpdate)
	protected.GET("/session", handler.handleSessionState)
	protected.PUT("/session", handler.handleSessionUpdate)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	capture      CaptureService
	journal      JournalReader
	gate         credentials.Gate
	session      *session.Tracker
	events       *EventDispatcher
	clientSecret string
	logger       *zap.Logger
}

type authRequestPayload struct {
	ClientSecret string `json:"client_secret"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAuthSession(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ClientSecret) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(request.ClientSecret), []byte(h.clientSecret)) != 1 {
		h.logger.Warn("client secret rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), tokenSubject)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type dreamListPayload struct {
	Dreams []journal.DreamRecord `json:"dreams"`
}

func (h *httpHandler) handleListDreams(c *gin.Context) {
	records := h.journal.ListRecords(c.Request.Context())
	c.JSON(http.StatusOK, dreamListPayload{Dreams: records})
}

func (h *httpHandler) handleGetDream(c *gin.Context) {
	record, ok := h.journal.GetRecord(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

type captureRequestPayload struct {
	AudioB64  string `json:"audio_b64"`
	ImageSize string `json:"image_size"`
}

func (h *httpHandler) handleCapture(c *gin.Context) {
	var request captureRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.AudioB64) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	audio, err := base64.StdEncoding.DecodeString(request.AudioB64)
	if err != nil || len(audio) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_audio"})
		return
	}

	size := journal.ImageSize1K
	if strings.TrimSpace(request.ImageSize) != "" {
		size, err = journal.ParseImageSize(request.ImageSize)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image_size"})
			return
		}
	}

	record, err := h.capture.Capture(c.Request.Context(), audio, size)
	if err != nil {
		h.writeCaptureError(c, err)
		return
	}

	// Focus moves to the new record right away; the illustration follows
	// over the event stream when it is ready.
	if err := h.session.ShowDetail(record.ID); err != nil {
		h.logger.Warn("session focus update failed", zap.Error(err))
	}

	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) writeCaptureError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, credentials.ErrNoCredential):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "credential_required"})
	case errors.Is(err, capture.ErrCredentialExpired):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "credential_expired"})
	case errors.Is(err, capture.ErrCaptureInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "capture_in_flight"})
	default:
		h.logger.Error("capture failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription_failed"})
	}
}

type chatRequestPayload struct {
	Message string `json:"message"`
}

func (h *httpHandler) handleChat(c *gin.Context) {
	var request chatRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	turn, err := h.capture.Chat(c.Request.Context(), c.Param("id"), request.Message)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, credentials.ErrNoCredential):
			c.JSON(http.StatusPreconditionFailed, gin.H{"error": "credential_required"})
		case errors.Is(err, journal.ErrInvalidChatText):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_message"})
		default:
			// The user's turn is already persisted; only the reply is missing.
			h.logger.Warn("chat reply failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "chat_unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, turn)
}

type credentialStatusPayload struct {
	Configured bool `json:"configured"`
}

func (h *httpHandler) handleCredentialStatus(c *gin.Context) {
	c.JSON(http.StatusOK, credentialStatusPayload{Configured: h.gate.HasCredential()})
}

type credentialUpdatePayload struct {
	APIKey string `json:"api_key"`
}

func (h *httpHandler) handleCredentialUpdate(c *gin.Context) {
	var request credentialUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.APIKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.gate.SetCredential(request.APIKey)
	c.JSON(http.StatusOK, credentialStatusPayload{Configured: true})
}

func (h *httpHandler) handleSessionState(c *gin.Context) {
	state := h.session.Snapshot()
	state.Busy = h.capture.Busy()
	c.JSON(http.StatusOK, state)
}

type sessionUpdatePayload struct {
	ActiveView       string `json:"active_view"`
	SelectedRecordID string `json:"selected_record_id"`
}

func (h *httpHandler) handleSessionUpdate(c *gin.Context) {
	var request sessionUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := session.ParseView(request.ActiveView)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_view"})
		return
	}
	if err := h.session.Apply(view, request.SelectedRecordID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_record"})
		return
	}

	state := h.session.Snapshot()
	state.Busy = h.capture.Busy()
	c.JSON(http.StatusOK, state)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	stream, cleanup := h.events.Subscribe(c.Request.Context())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(event.EventType, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expiry is routine token rotation, not an anomaly.
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}
