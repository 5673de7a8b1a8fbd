package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
	"github.com/your-org/campuswatch/internal/observability"
	"github.com/your-org/campuswatch/internal/queue"
	"github.com/your-org/campuswatch/internal/recognition"
	"github.com/your-org/campuswatch/internal/storage"
	"github.com/your-org/campuswatch/internal/tracking"
	"github.com/your-org/campuswatch/internal/vision"
	"github.com/your-org/campuswatch/pkg/dto"
)

// EmotionClassifier is the optional mood-analytics collaborator. It never
// gates recognition or tracking.
type EmotionClassifier interface {
	ClassifyEmotion(imageData []byte) (*vision.EmotionResult, error)
}

type PresenceHandler struct {
	db       *storage.PostgresStore
	recog    *recognition.Service
	tracker  *tracking.Tracker
	producer *queue.Producer
	location string

	// Emotion is optional; nil when the vision models failed to load.
	Emotion EmotionClassifier
}

func NewPresenceHandler(
	db *storage.PostgresStore,
	recog *recognition.Service,
	tracker *tracking.Tracker,
	producer *queue.Producer,
	location string,
) *PresenceHandler {
	return &PresenceHandler{
		db:       db,
		recog:    recog,
		tracker:  tracker,
		producer: producer,
		location: location,
	}
}

// Recognize handles one camera frame from a kiosk: match the face, record
// presence, attach an emotion observation. Policy outcomes (no face, no
// match, duplicate) render as 200 responses the kiosk can display; only
// malformed requests are 4xx.
func (h *PresenceHandler) Recognize(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	markPresence := c.DefaultPostForm("mark_presence", "true") == "true"
	location := c.DefaultPostForm("location", h.location)

	// Manual confirmation path: a claimed identity id bypasses matching.
	if claimed := c.PostForm("identity_id"); claimed != "" {
		identityID, err := uuid.Parse(claimed)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_id"})
			return
		}
		h.respond(c, imageData, identityID, models.VerifyManual, location, markPresence, 0)
		return
	}

	match, _, err := h.recog.Identify(imageData)
	if err != nil {
		resp := dto.RecognizeResponse{Recognized: false}
		switch {
		case errors.Is(err, recognition.ErrNoFaceDetected):
			observability.RecognitionAttempts.WithLabelValues("no_face").Inc()
			resp.Message = "No face detected"
		case errors.Is(err, recognition.ErrEmptyGallery):
			observability.RecognitionAttempts.WithLabelValues("empty_gallery").Inc()
			resp.Message = "No enrolled faces found. Please enroll first or confirm manually."
		case errors.Is(err, recognition.ErrEncodingFailed):
			observability.RecognitionAttempts.WithLabelValues("error").Inc()
			resp.Message = "Could not encode face"
		case errors.Is(err, recognition.ErrEncoderUnavailable):
			observability.RecognitionAttempts.WithLabelValues("error").Inc()
			resp.Message = "Face recognition is unavailable. Please confirm your identity manually."
		default:
			observability.RecognitionAttempts.WithLabelValues("error").Inc()
			slog.Error("identify", "error", err)
			resp.Message = "Recognition failed, please confirm manually"
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	if !match.Accepted {
		observability.RecognitionAttempts.WithLabelValues("no_match").Inc()
		c.JSON(http.StatusOK, dto.RecognizeResponse{
			Recognized: false,
			Distance:   match.Distance,
			Message:    "Face not recognized. Please confirm your identity manually.",
		})
		return
	}

	observability.RecognitionAttempts.WithLabelValues("matched").Inc()
	h.respond(c, imageData, match.ID, models.VerifyFace, location, markPresence, match.Distance)
}

// respond finishes the flow for a confirmed identity: presence record,
// emotion observation, NATS publish, kiosk response.
func (h *PresenceHandler) respond(
	c *gin.Context,
	imageData []byte,
	identityID uuid.UUID,
	method models.VerificationMethod,
	location string,
	markPresence bool,
	distance float64,
) {
	ctx := c.Request.Context()

	identity, err := h.db.GetIdentity(ctx, identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": recognition.ErrIdentityNotFound.Error()})
		return
	}

	resp := dto.RecognizeResponse{
		Recognized:   true,
		IdentityID:   &identity.ID,
		IdentityName: identity.Name,
		Distance:     distance,
	}
	if method == models.VerifyFace {
		resp.Confidence = (1 - distance) * 100
	}

	if !markPresence {
		resp.Message = "Verified: " + identity.Name
		c.JSON(http.StatusOK, resp)
		return
	}

	outcome, err := h.tracker.Record(ctx, identity.ID, method, location, time.Now().UTC())
	if err != nil {
		// The match succeeded but nothing durable was written. The kiosk
		// must warn that presence was NOT recorded, not pretend it was.
		slog.Error("record presence", "error", err, "identity", identity.ID)
		resp.Recorded = false
		resp.Message = "Recognized, but presence could not be recorded. Please try again or contact security."
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.Recorded = outcome.Created
	resp.Direction = string(outcome.Direction)
	resp.Duplicate = !outcome.Created
	resp.Message = identity.Name + ": " + outcome.Message

	if outcome.Created {
		observability.PresenceEvents.WithLabelValues(string(outcome.Direction), location).Inc()
	} else {
		observability.DuplicatesSuppressed.WithLabelValues(location).Inc()
	}

	// Emotion decorates the event either way: mood tracking still learns
	// from a duplicate-suppressed interaction.
	if h.Emotion != nil && outcome.Event != nil {
		if obs := h.attachEmotion(ctx, imageData, identity.ID, outcome.Event.ID); obs != nil {
			resp.Emotion = &dto.EmotionResponse{
				Dominant:   obs.DominantEmotion,
				Scores:     obs.Scores,
				Confidence: obs.Confidence,
				Age:        obs.Age,
				Gender:     obs.Gender,
			}
		}
	}

	h.publish(outcome, identity, location)
	c.JSON(http.StatusOK, resp)
}

func (h *PresenceHandler) attachEmotion(ctx context.Context, imageData []byte, identityID, eventID uuid.UUID) *models.EmotionObservation {
	result, err := h.Emotion.ClassifyEmotion(imageData)
	if err != nil {
		slog.Warn("classify emotion", "error", err)
		return nil
	}

	scores, err := json.Marshal(result.Scores)
	if err != nil {
		scores = json.RawMessage("{}")
	}

	obs := &models.EmotionObservation{
		EventID:         eventID,
		IdentityID:      identityID,
		DominantEmotion: result.Dominant,
		Scores:          scores,
		Confidence:      result.Confidence,
		Age:             result.Age,
		Gender:          result.Gender,
	}
	if err := h.db.SaveEmotionObservation(ctx, obs); err != nil {
		slog.Warn("save emotion observation", "error", err)
		return obs // still render it; persistence of mood data is best-effort
	}
	return obs
}

func (h *PresenceHandler) publish(outcome *tracking.Outcome, identity *models.Identity, location string) {
	if h.producer == nil {
		return
	}

	evtType := "presence_recorded"
	if !outcome.Created {
		evtType = "duplicate_suppressed"
	}

	payload := gin.H{
		"type":          evtType,
		"identity_id":   identity.ID,
		"identity_name": identity.Name,
		"direction":     outcome.Direction,
		"location":      location,
		"timestamp":     outcome.Event.Timestamp.Format(time.RFC3339),
	}

	pubCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.producer.Publish(pubCtx, queue.SubjectPresence, payload); err != nil {
		slog.Warn("publish presence event", "error", err)
	}
}

// History returns the presence log for one identity.
func (h *PresenceHandler) History(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	events, err := h.db.PresenceHistory(c.Request.Context(), identityID, since, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.PresenceHistoryResponse{
		Events: toPresenceResponses(events),
		Total:  len(events),
	})
}

// Recent returns the latest gate activity across all identities.
func (h *PresenceHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.db.RecentPresence(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.PresenceHistoryResponse{
		Events: toPresenceResponses(events),
		Total:  len(events),
	})
}

// Emotions returns the emotion observations recorded for one identity.
func (h *PresenceHandler) Emotions(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	observations, err := h.db.EmotionHistory(c.Request.Context(), identityID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"observations": observations, "total": len(observations)})
}

func toPresenceResponses(events []models.PresenceEvent) []dto.PresenceEventResponse {
	resp := make([]dto.PresenceEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.PresenceEventResponse{
			ID:                 ev.ID,
			IdentityID:         ev.IdentityID,
			Direction:          string(ev.Direction),
			VerificationMethod: string(ev.VerificationMethod),
			Location:           ev.Location,
			Timestamp:          ev.Timestamp.Format(time.RFC3339),
		})
	}
	return resp
}
