package handlers

import (
	"context"
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
	"github.com/your-org/campuswatch/internal/storage"
	"github.com/your-org/campuswatch/internal/visitor"
	"github.com/your-org/campuswatch/pkg/dto"
)

type VisitorHandler struct {
	db       *storage.PostgresStore
	svc      *visitor.Service
	producer *queue.Producer
	location string
}

func NewVisitorHandler(db *storage.PostgresStore, svc *visitor.Service, producer *queue.Producer, location string) *VisitorHandler {
	return &VisitorHandler{db: db, svc: svc, producer: producer, location: location}
}

// CheckIn registers a visitor from the kiosk form. A photo is mandatory; the
// guard against enrolled staff/students and the returning-visitor link both
// come from it.
func (h *VisitorHandler) CheckIn(c *gin.Context) {
	name := c.PostForm("name")
	reason := c.PostForm("reason")
	if name == "" || reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and reason are required"})
		return
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}
	defer file.Close()

	photo, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read photo failed"})
		return
	}

	result, err := h.svc.CheckIn(c.Request.Context(), visitor.CheckInRequest{
		Name:         name,
		Reason:       reason,
		Phone:        c.PostForm("phone"),
		Organization: c.PostForm("organization"),
		HostName:     c.PostForm("host_name"),
		Photo:        photo,
		CreatedBy:    c.DefaultPostForm("created_by", "kiosk"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !result.Accepted {
		observability.VisitorCheckIns.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusOK, dto.VisitorCheckInResponse{
			Accepted: false,
			Reason:   result.RejectReason,
			Message:  result.RejectReason,
		})
		return
	}

	kind := "new"
	if result.IsReturning {
		kind = "returning"
	}
	observability.VisitorCheckIns.WithLabelValues(kind).Inc()

	h.publish("visitor_check_in", result.Record)
	c.JSON(http.StatusCreated, dto.VisitorCheckInResponse{
		Accepted:    true,
		Visitor:     toVisitorResponse(result.Record),
		IsReturning: result.IsReturning,
		VisitCount:  result.VisitCount,
		Message:     result.Message,
	})
}

func (h *VisitorHandler) CheckOut(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visitor id"})
		return
	}

	rec, err := h.svc.CheckOut(c.Request.Context(), id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, visitor.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "visitor not found"})
		case errors.Is(err, visitor.ErrAlreadyCheckedOut):
			c.JSON(http.StatusConflict, gin.H{"error": "visitor already checked out"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	h.publish("visitor_check_out", rec)
	c.JSON(http.StatusOK, gin.H{
		"visitor": toVisitorResponse(rec),
		"message": "Goodbye, " + rec.Name + "! Visit completed.",
	})
}

func (h *VisitorHandler) Active(c *gin.Context) {
	visitors, err := h.db.ActiveVisitors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toVisitorList(visitors))
}

func (h *VisitorHandler) History(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	visitors, err := h.db.VisitorHistory(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toVisitorList(visitors))
}

func (h *VisitorHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q required"})
		return
	}

	visitors, err := h.db.SearchVisitors(c.Request.Context(), q, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toVisitorList(visitors))
}

func (h *VisitorHandler) Stats(c *gin.Context) {
	// Zero lower bound: totals are all-time, the query carves out today itself.
	stats, err := h.db.VisitorStats(c.Request.Context(), time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.VisitorStatsResponse{
		TotalVisitors:     stats.TotalVisitors,
		ActiveVisitors:    stats.ActiveVisitors,
		ReturningVisitors: stats.ReturningVisitors,
		TodayVisitors:     stats.TodayVisitors,
	})
}

// ReloadGallery rebuilds the visitor gallery from stored embeddings.
func (h *VisitorHandler) ReloadGallery(c *gin.Context) {
	loaded, err := h.svc.Reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observability.GallerySize.WithLabelValues("visitor").Set(float64(loaded))
	c.JSON(http.StatusOK, dto.ReloadResponse{Gallery: "visitor", Loaded: loaded})
}

func (h *VisitorHandler) publish(evtType string, rec *models.VisitorRecord) {
	if h.producer == nil {
		return
	}

	payload := gin.H{
		"type":         evtType,
		"visitor_id":   rec.ID,
		"visitor_name": rec.Name,
		"location":     h.location,
		"status":       rec.Status,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.producer.Publish(ctx, queue.SubjectVisitor, payload); err != nil {
		slog.Warn("publish visitor event", "error", err)
	}
}

func toVisitorResponse(rec *models.VisitorRecord) *dto.VisitorResponse {
	resp := &dto.VisitorResponse{
		ID:                 rec.ID,
		Name:               rec.Name,
		Reason:             rec.Reason,
		Phone:              rec.Phone,
		Organization:       rec.Organization,
		HostName:           rec.HostName,
		EntryTime:          rec.EntryTime.Format(time.RFC3339),
		Status:             string(rec.Status),
		IsReturning:        rec.IsReturning,
		PreviousVisitCount: rec.PreviousVisitCount,
	}
	if rec.ExitTime != nil {
		resp.ExitTime = rec.ExitTime.Format(time.RFC3339)
	}
	return resp
}

func toVisitorList(recs []models.VisitorRecord) dto.VisitorListResponse {
	out := make([]dto.VisitorResponse, 0, len(recs))
	for i := range recs {
		out = append(out, *toVisitorResponse(&recs[i]))
	}
	return dto.VisitorListResponse{Visitors: out, Total: len(out)}
}
