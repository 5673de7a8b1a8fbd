package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
	"github.com/your-org/campuswatch/internal/observability"
	"github.com/your-org/campuswatch/internal/recognition"
	"github.com/your-org/campuswatch/internal/storage"
	"github.com/your-org/campuswatch/pkg/dto"
)

// PhotoStore persists enrollment photos. Photo storage is best-effort:
// losing a photo never blocks enrollment, the embedding is what matters.
type PhotoStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

type IdentityHandler struct {
	db     *storage.PostgresStore
	recog  *recognition.Service
	photos PhotoStore
}

func NewIdentityHandler(db *storage.PostgresStore, recog *recognition.Service, photos PhotoStore) *IdentityHandler {
	return &IdentityHandler{db: db, recog: recog, photos: photos}
}

func (h *IdentityHandler) Create(c *gin.Context) {
	var req dto.CreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.db.CreateIdentity(c.Request.Context(), req.Name, models.Role(req.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toIdentityResponse(identity, false))
}

func (h *IdentityHandler) List(c *gin.Context) {
	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	enrolled := make(map[uuid.UUID]bool)
	for _, e := range h.recog.Gallery().Snapshot().Entries() {
		enrolled[e.ID] = true
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for i := range identities {
		resp = append(resp, toIdentityResponse(&identities[i], enrolled[identities[i].ID]))
	}
	c.JSON(http.StatusOK, gin.H{"identities": resp, "total": len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	identity, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	c.JSON(http.StatusOK, toIdentityResponse(identity, false))
}

// Enroll registers a face for an existing identity. The submitted photo must
// contain exactly one face; re-enrolling replaces the prior embedding.
func (h *IdentityHandler) Enroll(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	ctx := c.Request.Context()
	identity, err := h.db.GetIdentity(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

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

	photoKey := fmt.Sprintf("faces/%s/%s.jpg", id, uuid.New())
	if h.photos != nil {
		if err := h.photos.PutObject(ctx, photoKey, imageData, "image/jpeg"); err != nil {
			slog.Warn("store enrollment photo", "error", err, "identity", id)
			photoKey = ""
		}
	} else {
		photoKey = ""
	}

	if err := h.recog.Enroll(ctx, id, imageData, photoKey); err != nil {
		switch {
		case errors.Is(err, recognition.ErrNoFaceDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in image"})
		case errors.Is(err, recognition.ErrMultipleFaces):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "multiple faces detected, submit a photo with exactly one face"})
		case errors.Is(err, recognition.ErrEncodingFailed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "could not encode face"})
		case errors.Is(err, recognition.ErrEncoderUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face recognition unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	observability.GallerySize.WithLabelValues("identity").Set(float64(h.recog.Gallery().Snapshot().Len()))
	slog.Info("face enrolled", "identity", id, "name", identity.Name)

	c.JSON(http.StatusOK, dto.EnrollResponse{
		IdentityID: id,
		PhotoKey:   photoKey,
		Message:    "Face enrolled for " + identity.Name,
	})
}

// DeleteFace removes an identity's face data but keeps the identity record
// and its presence history.
func (h *IdentityHandler) DeleteFace(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	if err := h.recog.Unenroll(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observability.GallerySize.WithLabelValues("identity").Set(float64(h.recog.Gallery().Snapshot().Len()))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *IdentityHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	ctx := c.Request.Context()
	if err := h.recog.Unenroll(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.DeleteIdentity(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observability.GallerySize.WithLabelValues("identity").Set(float64(h.recog.Gallery().Snapshot().Len()))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SearchByFace ranks enrolled identities by distance to the face in the
// submitted image. Review tool for security staff; it applies no acceptance
// threshold and records nothing.
func (h *IdentityHandler) SearchByFace(c *gin.Context) {
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

	_, probe, err := h.recog.Identify(imageData)
	// An empty gallery still yields a probe; ranking then comes from SQL.
	if err != nil && !errors.Is(err, recognition.ErrEmptyGallery) {
		switch {
		case errors.Is(err, recognition.ErrNoFaceDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in image"})
		case errors.Is(err, recognition.ErrEncoderUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face recognition unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	limit, _ := strconv.Atoi(c.DefaultPostForm("limit", "5"))
	candidates, err := h.db.SearchIdentitiesByEmbedding(c.Request.Context(), probe, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "total": len(candidates)})
}

// ReloadGallery rebuilds the in-memory gallery from storage, for recovery
// after out-of-band database edits.
func (h *IdentityHandler) ReloadGallery(c *gin.Context) {
	loaded, err := h.recog.Reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observability.GallerySize.WithLabelValues("identity").Set(float64(loaded))
	c.JSON(http.StatusOK, dto.ReloadResponse{Gallery: "identity", Loaded: loaded})
}

func toIdentityResponse(identity *models.Identity, enrolled bool) dto.IdentityResponse {
	return dto.IdentityResponse{
		ID:        identity.ID,
		Name:      identity.Name,
		Role:      string(identity.Role),
		Enrolled:  enrolled,
		CreatedAt: identity.CreatedAt.Format(time.RFC3339),
	}
}
