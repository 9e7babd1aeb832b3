package ingest

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"emotion-pulse/backend/internal/queue"
	apperrors "emotion-pulse/backend/pkg/errors"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/observability"

	"github.com/gin-gonic/gin"
)

// WebhookHandler validates inbound platform calls and enqueues message
// events. It acknowledges synchronously; scoring happens downstream.
type WebhookHandler struct {
	verificationToken string
	queue             queue.Queue
	metrics           *observability.Metrics
	log               *logger.Logger
}

// NewWebhookHandler creates the gateway handler.
func NewWebhookHandler(verificationToken string, q queue.Queue, metrics *observability.Metrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verificationToken: verificationToken,
		queue:             q,
		metrics:           metrics,
		log:               log,
	}
}

// HandleWebhook is the POST /webhook endpoint.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.metrics.EventsRejected.WithLabelValues("malformed").Inc()
		h.fail(c, apperrors.NewBadRequestError(apperrors.CodeMalformedPayload, "unparseable webhook body"))
		return
	}

	// Token mismatch is an authentication failure: rejected before anything
	// is enqueued, regardless of payload type. Constant-time compare keeps
	// the shared secret free of timing leaks.
	if h.verificationToken == "" ||
		subtle.ConstantTimeCompare([]byte(payload.Token), []byte(h.verificationToken)) != 1 {
		h.metrics.EventsRejected.WithLabelValues("auth").Inc()
		h.fail(c, apperrors.NewUnauthorizedError(apperrors.CodeInvalidToken, "verification token mismatch"))
		return
	}

	switch payload.Type {
	case TypeURLVerification:
		c.JSON(http.StatusOK, gin.H{"challenge": payload.Challenge})
	case TypeEventCallback:
		h.handleEventCallback(c, &payload)
	default:
		h.metrics.EventsRejected.WithLabelValues("type").Inc()
		c.JSON(http.StatusOK, gin.H{})
	}
}

func (h *WebhookHandler) handleEventCallback(c *gin.Context, payload *WebhookPayload) {
	log := logger.FromContext(c, h.log)

	if reason := ignoreReason(payload); reason != "" {
		// Bot chatter and channel notifications are expected traffic, not
		// errors; acknowledge so the platform does not retry.
		h.metrics.EventsRejected.WithLabelValues(reason).Inc()
		log.Debug("event ignored", "reason", reason, "event_id", payload.EventID)
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	if payload.EventID == "" || payload.EventTime == 0 || payload.Event.User == "" || payload.Event.Channel == "" {
		h.metrics.EventsRejected.WithLabelValues("malformed").Inc()
		h.fail(c, apperrors.NewBadRequestError(apperrors.CodeMalformedPayload, "missing required event fields"))
		return
	}

	msg := payload.ToQueueMessage()
	enqueued, err := h.queue.Enqueue(c.Request.Context(), msg)
	if err != nil {
		log.LogError(err, "enqueue failed", "event_id", msg.EventID)
		h.fail(c, apperrors.NewInternalServerError(apperrors.CodeEnqueueFailed, "could not enqueue event"))
		return
	}

	if enqueued {
		h.metrics.EventsIngested.Inc()
		log.Info("event enqueued", "event_id", msg.EventID, "group", msg.Group())
	} else {
		h.metrics.EventsRejected.WithLabelValues("duplicate").Inc()
	}
	c.JSON(http.StatusOK, gin.H{})
}

// fail hands the error to the ErrorHandler middleware, which renders the
// response envelope.
func (h *WebhookHandler) fail(c *gin.Context, appErr *apperrors.AppError) {
	_ = c.Error(appErr)
	c.Abort()
}

// ignoreReason classifies traffic the pipeline does not score: bot
// messages, channel/bot notification subtypes, non-message events, empty
// text.
func ignoreReason(payload *WebhookPayload) string {
	if payload.Event.Type != TypeMessageEvent {
		return "type"
	}
	if payload.Event.BotID != "" {
		return "bot"
	}
	if s := payload.Event.Subtype; s != "" {
		if strings.Contains(s, "bot") || strings.Contains(s, "channel") || strings.Contains(s, "notification") {
			return "subtype"
		}
	}
	if payload.Event.Text == "" {
		return "empty"
	}
	return ""
}
