package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"keyframes-backend/internal/models"
	"keyframes-backend/internal/services"
	"keyframes-backend/internal/timeline"
)

type TimelineHandler struct {
	editor *services.EditorService
}

func NewTimelineHandler(editor *services.EditorService) *TimelineHandler {
	return &TimelineHandler{editor: editor}
}

func (h *TimelineHandler) GetTimeline(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	snap, err := h.editor.Timeline(c.Request.Context(), sess, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *TimelineHandler) CreateTrack(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	var req models.CreateTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	track, err := h.editor.CreateTrack(c.Request.Context(), sess, projectID, req.Name, timeline.TrackKind(req.TrackType))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, track)
}

func (h *TimelineHandler) UpdateTrack(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	trackID, ok := uuidParam(c, "track_id")
	if !ok {
		return
	}
	var patch timeline.TrackPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	track, err := h.editor.UpdateTrack(c.Request.Context(), sess, projectID, trackID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, track)
}

func (h *TimelineHandler) MoveTrack(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	trackID, ok := uuidParam(c, "track_id")
	if !ok {
		return
	}
	var req models.MoveTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	tracks, err := h.editor.MoveTrack(c.Request.Context(), sess, projectID, trackID, *req.Index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func (h *TimelineHandler) DeleteTrack(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	trackID, ok := uuidParam(c, "track_id")
	if !ok {
		return
	}
	if err := h.editor.DeleteTrack(c.Request.Context(), sess, projectID, trackID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TimelineHandler) CreateItem(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	trackID, ok := uuidParam(c, "track_id")
	if !ok {
		return
	}
	var in timeline.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	item, err := h.editor.CreateItem(c.Request.Context(), sess, projectID, trackID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *TimelineHandler) UpdateItem(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}
	var patch timeline.ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	item, err := h.editor.UpdateItem(c.Request.Context(), sess, projectID, itemID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *TimelineHandler) DeleteItem(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}
	if err := h.editor.DeleteItem(c.Request.Context(), sess, projectID, itemID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// timeParam reads the ?t= query parameter in milliseconds.
func timeParam(c *gin.Context) (int64, bool) {
	raw := c.Query("t")
	if raw == "" {
		return 0, true
	}
	t, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid t", err)
		return 0, false
	}
	return t, true
}

func (h *TimelineHandler) Scene(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	t, ok := timeParam(c)
	if !ok {
		return
	}
	sc, err := h.editor.Scene(c.Request.Context(), sess, projectID, t)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (h *TimelineHandler) ActiveItems(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	projectID, ok := uuidParam(c, "project_id")
	if !ok {
		return
	}
	t, ok := timeParam(c)
	if !ok {
		return
	}
	items, err := h.editor.ActiveItems(c.Request.Context(), sess, projectID, t)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"time": t, "items": items})
}
